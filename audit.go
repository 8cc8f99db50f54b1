package deltatrail

import (
	"context"
	"time"

	"github.com/mickamy/deltatrail/auditlog"
	"github.com/mickamy/deltatrail/delta"
)

type query struct {
	hasRange   bool
	start, end time.Time
	hasID      bool
	id         string
	endpoints  bool
}

// QueryOption narrows or reshapes a query.
type QueryOption func(*query)

// WithRange keeps entries recorded between start and end, both inclusive.
func WithRange(start, end time.Time) QueryOption {
	return func(q *query) {
		q.hasRange = true
		q.start, q.end = start, end
	}
}

// WithID keeps entries of one record.
func WithID(id string) QueryOption {
	return func(q *query) {
		q.hasID = true
		q.id = id
	}
}

// WithEndpoints collapses each record's entries into a single net entry.
func WithEndpoints() QueryOption {
	return func(q *query) { q.endpoints = true }
}

// All decodes the whole log in file order. OldSnapshot is only populated
// when withSnapshot is set.
func (t *Tracker) All(ctx context.Context, withSnapshot bool) ([]delta.Entry, error) {
	b, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := auditlog.Decode(b, withSnapshot)
	if err != nil {
		return nil, &Error{Op: OpDecode, Err: err}
	}
	return entries, nil
}

// Query applies opts to the decoded log: range first, then id, then
// endpoint reconstruction.
func (t *Tracker) Query(ctx context.Context, opts ...QueryOption) ([]delta.Entry, error) {
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	entries, err := t.All(ctx, q.endpoints)
	if err != nil {
		return nil, err
	}
	if q.hasRange {
		entries = FilterByDateRange(entries, epoch(q.start), epoch(q.end))
	}
	if q.hasID {
		entries = FilterByID(entries, q.id)
	}
	if q.endpoints {
		entries = ReconstructEndpoints(entries)
	}
	return entries, nil
}

// Between returns entries recorded in [start, end].
func (t *Tracker) Between(ctx context.Context, start, end time.Time, opts ...QueryOption) ([]delta.Entry, error) {
	return t.Query(ctx, append([]QueryOption{WithRange(start, end)}, opts...)...)
}

// OfDate returns entries recorded on day, from its midnight up to and
// including the next midnight in the tracker's location.
func (t *Tracker) OfDate(ctx context.Context, day time.Time, opts ...QueryOption) ([]delta.Entry, error) {
	start := t.midnight(day)
	return t.Between(ctx, start, start.AddDate(0, 0, 1), opts...)
}

// Today is OfDate for the current day.
func (t *Tracker) Today(ctx context.Context, opts ...QueryOption) ([]delta.Entry, error) {
	return t.OfDate(ctx, t.cfg.Clock(), opts...)
}

// Since returns entries from the midnight of day through the end of today.
func (t *Tracker) Since(ctx context.Context, day time.Time, opts ...QueryOption) ([]delta.Entry, error) {
	end := t.midnight(t.cfg.Clock()).AddDate(0, 0, 1)
	return t.Between(ctx, t.midnight(day), end, opts...)
}

// ByID returns the entries of one record.
func (t *Tracker) ByID(ctx context.Context, id string, opts ...QueryOption) ([]delta.Entry, error) {
	return t.Query(ctx, append([]QueryOption{WithID(id)}, opts...)...)
}

// ByOperation returns every entry carrying changes of kind op, projected
// onto that kind. An unknown op yields an empty result.
func (t *Tracker) ByOperation(ctx context.Context, op Operation, opts ...QueryOption) ([]OperationEntry, error) {
	entries, err := t.Query(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return FilterByOperation(entries, op), nil
}

func (t *Tracker) midnight(day time.Time) time.Time {
	d := day.In(t.cfg.Location)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.cfg.Location)
}
