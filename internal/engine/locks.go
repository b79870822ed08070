package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// instanceLocks is a table of per-instance exclusive locks.
//
// Entries are reference counted and removed once no goroutine holds or
// waits for them, so the table only grows with the number of instances
// currently being advanced.
type instanceLocks struct {
	mu      sync.Mutex
	locks   map[string]*instanceLock
	timeout time.Duration
}

type instanceLock struct {
	sem  chan struct{}
	refs int
}

func newInstanceLocks(timeout time.Duration) *instanceLocks {
	return &instanceLocks{
		locks:   make(map[string]*instanceLock),
		timeout: timeout,
	}
}

// acquire blocks until the lock for id is held, ctx is done or the lock
// timeout elapses. The returned func releases the lock.
func (l *instanceLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &instanceLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case lk.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.sem
				l.release(id, lk)
			})
		}, nil
	case <-ctx.Done():
		l.release(id, lk)
		return nil, fmt.Errorf("lock instance %s: %w", id, ctx.Err())
	}
}

func (l *instanceLocks) release(id string, lk *instanceLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// size returns the number of live entries.
func (l *instanceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
