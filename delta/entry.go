package delta

// Change holds both sides of an updated path.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Entry is one audit log record: the paths created, updated and deleted
// between two snapshots of a record.
type Entry struct {
	UpdatedOn   string            `json:"updated_on,omitempty"`
	Timestamp   float64           `json:"timestamp,omitempty"`
	ID          string            `json:"id"`
	Created     map[string]any    `json:"created"`
	Updated     map[string]Change `json:"updated"`
	Deleted     map[string]any    `json:"deleted"`
	OldSnapshot Snapshot          `json:"snapshot,omitempty"` // only when requested
}

// Empty reports whether the entry carries no change at all.
func (e Entry) Empty() bool {
	return len(e.Created) == 0 && len(e.Updated) == 0 && len(e.Deleted) == 0
}

// Nested is the deflattened view of an entry's changes.
type Nested struct {
	Created map[string]any `json:"created"`
	Updated map[string]any `json:"updated"`
	Deleted map[string]any `json:"deleted"`
}

// Nested rebuilds created, updated and deleted as nested objects.
func (e Entry) Nested() (Nested, error) {
	created, err := Deflatten(e.Created)
	if err != nil {
		return Nested{}, err
	}
	updated := make(map[string]any, len(e.Updated))
	for p, c := range e.Updated {
		updated[p] = c
	}
	nestedUpdated, err := Deflatten(updated)
	if err != nil {
		return Nested{}, err
	}
	deleted, err := Deflatten(e.Deleted)
	if err != nil {
		return Nested{}, err
	}
	return Nested{Created: created, Updated: nestedUpdated, Deleted: deleted}, nil
}
