package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/procflow/internal/history"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
)

// DefaultMaxSteps is the default maximum number of nodes one advance cycle
// may enter.
const DefaultMaxSteps = 1000

// DefaultLockTimeout bounds how long a cycle waits for its instance lock.
const DefaultLockTimeout = 20 * time.Second

// Engine executes process instances against a storage backend.
// All methods are safe for concurrent use.
type Engine struct {
	store     store.Backend
	clock     *Clock
	ids       IDGenerator
	times     TimeSource
	locks     *instanceLocks
	recorder  *history.Recorder
	listeners []Listener
	logger    *slog.Logger

	maxSteps    int
	lockTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the maximum number of nodes per advance cycle.
//
// Default: 1000 steps (DefaultMaxSteps). A non-positive value disables the
// limit.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithIDGenerator replaces the default UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithTimeSource replaces the system clock.
func WithTimeSource(ts TimeSource) Option {
	return func(e *Engine) {
		e.times = ts
	}
}

// WithClock sets the logical clock instead of resuming one from the store.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithListeners appends listeners. They cannot be changed after New.
func WithListeners(listeners ...Listener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, listeners...)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLockTimeout bounds the wait for an instance lock.
// Default: 20s (DefaultLockTimeout). Zero waits until the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTimeout = d
	}
}

// New creates an Engine. Unless WithClock is given, the logical clock is
// resumed from the highest seq already stored.
func New(ctx context.Context, b store.Backend, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:       b,
		ids:         UUIDv7Generator{},
		times:       SystemTime{},
		logger:      slog.Default(),
		maxSteps:    DefaultMaxSteps,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.clock == nil {
		var maxSeq int64
		err := b.View(ctx, func(tx store.Tx) error {
			var err error
			maxSeq, err = tx.MaxSeq(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("resume clock: %w", err)
		}
		e.clock = NewClockAt(maxSeq)
	}

	e.locks = newInstanceLocks(e.lockTimeout)
	e.recorder = history.NewRecorder(e.clock, e.ids)

	e.logger.Debug("engine ready",
		"seq", e.clock.Current(),
		"max_steps", e.maxSteps,
		"listeners", len(e.listeners),
	)
	return e, nil
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// MaxSteps returns the configured maximum steps per cycle.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

func (e *Engine) now() time.Time {
	return e.times.Now().UTC()
}

// notify delivers committed events to listeners.
func (e *Engine) notify(ctx context.Context, events []ir.HistoryEvent) {
	for _, ev := range events {
		for _, l := range e.listeners {
			l.OnEvent(ctx, ev)
		}
	}
}
