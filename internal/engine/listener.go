package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/procflow/internal/ir"
)

// Listener observes history events after their advance cycle commits.
//
// Listeners are fixed when the engine is built. They are called
// synchronously in registration order, once per event in seq order, on the
// goroutine that ran the cycle. A slow listener delays the caller.
type Listener interface {
	OnEvent(ctx context.Context, event ir.HistoryEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event ir.HistoryEvent)

// OnEvent calls f.
func (f ListenerFunc) OnEvent(ctx context.Context, event ir.HistoryEvent) {
	f(ctx, event)
}

// LoggingListener writes every event to a structured logger at debug level.
type LoggingListener struct {
	Logger *slog.Logger
}

// OnEvent implements Listener.
func (l LoggingListener) OnEvent(ctx context.Context, event ir.HistoryEvent) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "history event",
		"type", event.Type,
		"seq", event.Seq,
		"instance_id", event.ProcessInstanceID,
		"node_id", event.NodeID,
		"task_id", event.TaskID,
		"detail", event.Detail,
	)
}
