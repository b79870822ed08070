package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLocks_Exclusive(t *testing.T) {
	locks := newInstanceLocks(0)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.acquire(ctx, "inst-1")
			require.NoError(t, err)

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
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "only one holder at a time")
	assert.Zero(t, locks.size(), "idle entries are removed")
}

func TestInstanceLocks_IndependentKeys(t *testing.T) {
	locks := newInstanceLocks(0)
	ctx := context.Background()

	unlockA, err := locks.acquire(ctx, "a")
	require.NoError(t, err)
	unlockB, err := locks.acquire(ctx, "b")
	require.NoError(t, err, "a different instance is not blocked")
	assert.Equal(t, 2, locks.size())

	unlockA()
	unlockB()
	assert.Zero(t, locks.size())
}

func TestInstanceLocks_Timeout(t *testing.T) {
	locks := newInstanceLocks(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locks.acquire(ctx, "inst-1")
	require.NoError(t, err)

	_, err = locks.acquire(ctx, "inst-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, locks.size(), "the waiter released its reference")

	unlock()
	assert.Zero(t, locks.size())
}

func TestInstanceLocks_ContextCancelled(t *testing.T) {
	locks := newInstanceLocks(0)

	unlock, err := locks.acquire(context.Background(), "inst-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locks.acquire(ctx, "inst-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInstanceLocks_UnlockIdempotent(t *testing.T) {
	locks := newInstanceLocks(0)

	unlock, err := locks.acquire(context.Background(), "inst-1")
	require.NoError(t, err)
	unlock()
	unlock()

	assert.Zero(t, locks.size())
	unlock2, err := locks.acquire(context.Background(), "inst-1")
	require.NoError(t, err)
	unlock2()
}
