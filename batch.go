package deltatrail

import (
	"context"

	"github.com/mickamy/deltatrail/delta"
	"github.com/mickamy/deltatrail/internal/buffer"
)

// Batch buffers entries and appends them with a single write on Commit.
type Batch struct {
	t   *Tracker
	ctx context.Context
	buf *buffer.Buffer[delta.Entry]
}

// Begin starts a batch whose entries are written when Commit is called.
func (t *Tracker) Begin(ctx context.Context) *Batch {
	return &Batch{t: t, ctx: ctx, buf: buffer.New[delta.Entry]()}
}

// Track computes the entry for oldRecord -> newRecord and buffers it.
func (b *Batch) Track(oldRecord, newRecord any) error {
	if extractSkip(b.ctx) {
		return nil
	}
	e, err := b.t.entry(b.ctx, oldRecord, newRecord)
	if err != nil {
		return err
	}
	b.buf.Add(e)
	return nil
}

// Len returns the number of buffered entries.
func (b *Batch) Len() int { return b.buf.Len() }

// Commit appends every buffered entry in one read-modify-write. On failure
// the entries stay buffered so Commit can be retried.
func (b *Batch) Commit() error {
	entries := b.buf.Drain()
	if len(entries) == 0 {
		return nil
	}
	if err := b.t.commit(b.ctx, entries); err != nil {
		b.buf.Restore(entries)
		return err
	}
	return nil
}

// Rollback discards buffered entries.
func (b *Batch) Rollback() {
	b.buf.Reset()
}
