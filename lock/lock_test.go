package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/deltatrail/lock"
)

func TestMutex_Exclusive(t *testing.T) {
	t.Parallel()

	m := lock.NewMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "orders.jsonl")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestMutex_ContextCancel(t *testing.T) {
	t.Parallel()

	m := lock.NewMutex()
	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// other keys are independent
	other, err := m.Lock(context.Background(), "other")
	require.NoError(t, err)
	require.NoError(t, other(context.Background()))

	require.NoError(t, unlock(context.Background()))
	require.NoError(t, unlock(context.Background()), "double unlock is a no-op")

	again, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func TestMutex_ZeroValue(t *testing.T) {
	t.Parallel()

	var m lock.Mutex
	ctx := context.Background()

	unlock, err := m.Lock(ctx, "orders.jsonl")
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(blocked, "orders.jsonl")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))
	again, err := m.Lock(ctx, "orders.jsonl")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
