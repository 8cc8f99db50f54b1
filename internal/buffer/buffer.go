package buffer

import (
	"sync"
)

// Buffer collects items until they are drained.
type Buffer[T any] struct {
	mu sync.Mutex
	ts []T
}

func New[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

func (b *Buffer[T]) Add(ts ...T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ts = append(b.ts, ts...)
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ts)
}

// Drain returns the buffered items and empties the buffer.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	ts := b.ts
	b.ts = nil
	b.mu.Unlock()
	return ts
}

// Restore puts drained items back in front of anything added since.
func (b *Buffer[T]) Restore(ts []T) {
	if len(ts) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ts = append(append(make([]T, 0, len(ts)+len(b.ts)), ts...), b.ts...)
}

func (b *Buffer[T]) Reset() {
	b.Drain()
}
