package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the monotonic logical clock that orders history.
//
// Every task and history row is stamped with a strictly increasing seq from
// this clock. Sequence numbers are never reused, even when the cycle that
// drew them rolls back. Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used on startup to resume from the highest seq in the store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe raises the clock to at least seq. It never moves the clock back.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// TimeSource supplies wall-clock time.
type TimeSource interface {
	Now() time.Time
}

// SystemTime reads the system clock.
type SystemTime struct{}

// Now returns time.Now in UTC.
func (SystemTime) Now() time.Time {
	return time.Now().UTC()
}
