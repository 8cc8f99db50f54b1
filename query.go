package deltatrail

import (
	"fmt"
	"strings"

	"github.com/mickamy/deltatrail/delta"
)

// Operation is a change kind recorded in an entry.
type Operation string

const (
	Created Operation = "created"
	Updated Operation = "updated"
	Deleted Operation = "deleted"
)

// ParseOperation validates a change kind. "inserted" is accepted as an
// alias of created.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case Created, Updated, Deleted:
		return op, nil
	case "inserted":
		return Created, nil
	default:
		return "", fmt.Errorf("%w: %q (want created, updated or deleted)", ErrInvalidOperation, s)
	}
}

// OperationEntry is an entry projected onto one change kind.
type OperationEntry struct {
	UpdatedOn string         `json:"updated_on"`
	Timestamp float64        `json:"timestamp"`
	ID        string         `json:"id"`
	Operation Operation      `json:"operation"`
	Changes   map[string]any `json:"changes"`
}

// FilterByDateRange keeps entries with start <= Timestamp <= end.
func FilterByDateRange(entries []delta.Entry, start, end float64) []delta.Entry {
	out := make([]delta.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Timestamp >= start && e.Timestamp <= end {
			out = append(out, e)
		}
	}
	return out
}

// FilterByID keeps entries of the record id. Entries recorded without a
// primary key never match.
func FilterByID(entries []delta.Entry, id string) []delta.Entry {
	out := make([]delta.Entry, 0, len(entries))
	if id == "" {
		return out
	}
	for _, e := range entries {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}

// FilterByOperation projects every entry with a non-empty op field. An
// unknown op yields an empty result rather than an error; use
// ParseOperation first when the kind comes from user input.
func FilterByOperation(entries []delta.Entry, op Operation) []OperationEntry {
	out := make([]OperationEntry, 0)
	for _, e := range entries {
		var changes map[string]any
		switch op {
		case Created:
			changes = e.Created
		case Deleted:
			changes = e.Deleted
		case Updated:
			if len(e.Updated) > 0 {
				changes = make(map[string]any, len(e.Updated))
				for p, c := range e.Updated {
					changes[p] = c
				}
			}
		default:
			return out
		}
		if len(changes) == 0 {
			continue
		}
		out = append(out, OperationEntry{
			UpdatedOn: e.UpdatedOn,
			Timestamp: e.Timestamp,
			ID:        e.ID,
			Operation: op,
			Changes:   changes,
		})
	}
	return out
}

// ReconstructEndpoints collapses each record's run of entries into one
// entry from its earliest to its latest observed state. Entries must carry
// OldSnapshot and be in file order; groups are emitted in order of first
// appearance. Entries without an ID belong to no record, so each one forms
// its own group.
//
// A single-entry group is returned as is. For a longer group the state is
// seeded from the first entry's OldSnapshot, every entry's delta is applied
// in order, and the result is the diff of the seed against the final
// state, stamped with the last entry's UpdatedOn and Timestamp. OldSnapshot
// is never set on the output.
func ReconstructEndpoints(entries []delta.Entry) []delta.Entry {
	var groups [][]delta.Entry
	index := map[string]int{}
	for _, e := range entries {
		if e.ID != "" {
			if i, ok := index[e.ID]; ok {
				groups[i] = append(groups[i], e)
				continue
			}
			index[e.ID] = len(groups)
		}
		groups = append(groups, []delta.Entry{e})
	}

	out := make([]delta.Entry, 0, len(groups))
	for _, group := range groups {
		if len(group) == 1 {
			e := group[0]
			e.OldSnapshot = nil
			out = append(out, e)
			continue
		}

		start := group[0].OldSnapshot
		if start == nil {
			start = delta.Snapshot{}
		}
		state := start
		for _, e := range group {
			state = delta.Apply(state, e)
		}

		last := group[len(group)-1]
		e := delta.Diff(start, state, "")
		e.ID = last.ID
		e.UpdatedOn = last.UpdatedOn
		e.Timestamp = last.Timestamp
		out = append(out, e)
	}
	return out
}
