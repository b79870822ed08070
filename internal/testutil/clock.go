// Package testutil provides deterministic time, sequence and id sources so
// engine runs can be compared byte for byte.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a StepTime.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a resettable sequence source.
// The first call to Next returns 1.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock starting at 0.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset sets the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// StepTime is a wall clock that advances by a fixed step on every reading.
//
//	st := NewStepTime(testutil.Epoch, time.Second)
//	st.Now() // Epoch
//	st.Now() // Epoch + 1s
type StepTime struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepTime creates a StepTime whose first reading is start.
// A zero step freezes time at start.
func NewStepTime(start time.Time, step time.Duration) *StepTime {
	return &StepTime{next: start.UTC(), step: step}
}

// Now returns the current reading and advances by one step.
func (s *StepTime) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.next
	s.next = s.next.Add(s.step)
	return now
}

// Set moves the next reading to t, which may lie in the past.
func (s *StepTime) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = t.UTC()
}
