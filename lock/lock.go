package lock

import (
	"context"
	"sync"
)

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker grants exclusive access to a key. Lock blocks until the key is
// acquired or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Mutex is a Locker for writers within a single process. The zero value
// is ready to use.
type Mutex struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMutex() *Mutex {
	return &Mutex{slots: map[string]chan struct{}{}}
}

func (m *Mutex) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots == nil {
		m.slots = map[string]chan struct{}{}
	}
	s, ok := m.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[key] = s
	}
	return s
}

func (m *Mutex) Lock(ctx context.Context, key string) (Unlock, error) {
	s := m.slot(key)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-s })
		return nil
	}, nil
}
