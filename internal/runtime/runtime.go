// Package runtime is the single entry point to a procflow engine: it opens
// the configured store and exposes deployment, execution, task and history
// operations behind one facade.
//
// Typical use:
//
//	rt, err := runtime.New(ctx, cfg)
//	...
//	inst, err := rt.StartProcessInstanceByKey(ctx, "oneTaskProcess", nil)
//	task, err := rt.CreateTaskQuery().ProcessInstanceID(inst.ID).TaskName("my task").SingleResult(ctx)
//	err = rt.CompleteTask(ctx, task.ID, ir.Object{"form_outcome": ir.String("retry")})
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/roach88/procflow/internal/compiler"
	"github.com/roach88/procflow/internal/config"
	"github.com/roach88/procflow/internal/engine"
	"github.com/roach88/procflow/internal/history"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
	"github.com/roach88/procflow/internal/task"
)

// Runtime wires the engine, task service and history service over one store.
type Runtime struct {
	store     *store.Store
	engine    *engine.Engine
	tasks     *task.Service
	history   *history.Service
	listeners []engine.Listener
	logger    *slog.Logger
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	listeners []engine.Listener
	ids       engine.IDGenerator
	times     engine.TimeSource
	logger    *slog.Logger
}

// WithListeners registers event listeners. Listeners that implement
// io.Closer are closed by Runtime.Close.
func WithListeners(listeners ...engine.Listener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, listeners...)
	}
}

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(ids engine.IDGenerator) Option {
	return func(o *options) {
		o.ids = ids
	}
}

// WithTimeSource replaces the system clock.
func WithTimeSource(ts engine.TimeSource) Option {
	return func(o *options) {
		o.times = ts
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New opens the store described by cfg and builds a Runtime on it.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engineOpts := []engine.Option{
		engine.WithMaxSteps(cfg.Engine.MaxSteps),
		engine.WithLockTimeout(cfg.LockTimeout()),
		engine.WithListeners(o.listeners...),
		engine.WithLogger(o.logger),
	}
	if o.ids != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(o.ids))
	}
	if o.times != nil {
		engineOpts = append(engineOpts, engine.WithTimeSource(o.times))
	}

	e, err := engine.New(ctx, s, engineOpts...)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("start engine: %w", err), s.Close())
	}

	o.logger.Info("runtime ready",
		"driver", cfg.Datasource.Driver,
		"max_active", cfg.Datasource.Pool.MaxActive,
		"max_steps", cfg.Engine.MaxSteps,
	)

	return &Runtime{
		store:     s,
		engine:    e,
		tasks:     task.NewService(s, e),
		history:   history.NewService(s),
		listeners: o.listeners,
		logger:    o.logger,
	}, nil
}

// Engine returns the underlying execution engine.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Tasks returns the task service.
func (r *Runtime) Tasks() *task.Service {
	return r.tasks
}

// History returns the history service.
func (r *Runtime) History() *history.Service {
	return r.history
}

// Deploy validates and stores a definition, returning the stored version.
func (r *Runtime) Deploy(ctx context.Context, def ir.ProcessDefinition) (ir.ProcessDefinition, error) {
	return r.engine.Deploy(ctx, def)
}

// DeployFile deploys every definition found at path, a file or directory.
// Deployment stops at the first failure.
func (r *Runtime) DeployFile(ctx context.Context, path string) ([]ir.ProcessDefinition, error) {
	drafts, err := compiler.LoadPath(path)
	if err != nil {
		return nil, err
	}
	deployed := make([]ir.ProcessDefinition, 0, len(drafts))
	for _, draft := range drafts {
		def, err := r.engine.Deploy(ctx, draft)
		if err != nil {
			return deployed, fmt.Errorf("%s: %w", path, err)
		}
		r.logger.Info("deployed definition", "key", def.Key, "version", def.Version, "id", def.ID)
		deployed = append(deployed, def)
	}
	return deployed, nil
}

// Definition returns the latest version of a definition key.
func (r *Runtime) Definition(ctx context.Context, key string) (ir.ProcessDefinition, error) {
	return r.engine.Definition(ctx, key)
}

// Definitions lists every deployed definition version.
func (r *Runtime) Definitions(ctx context.Context) ([]ir.ProcessDefinition, error) {
	return r.engine.Definitions(ctx)
}

// StartProcessInstanceByKey starts the latest version of key.
func (r *Runtime) StartProcessInstanceByKey(ctx context.Context, key string, vars ir.Object) (ir.ProcessInstance, error) {
	return r.engine.Start(ctx, key, vars)
}

// StartProcessInstanceByKeyAndBusinessKey starts the latest version of key
// tagged with a business key.
func (r *Runtime) StartProcessInstanceByKeyAndBusinessKey(ctx context.Context, key, businessKey string, vars ir.Object) (ir.ProcessInstance, error) {
	return r.engine.StartWithBusinessKey(ctx, key, businessKey, vars)
}

// CompleteTask completes a task and advances its instance.
func (r *Runtime) CompleteTask(ctx context.Context, taskID string, vars ir.Object) error {
	return r.tasks.Complete(ctx, taskID, vars)
}

// SetVariables writes variables on an active instance.
func (r *Runtime) SetVariables(ctx context.Context, instanceID string, vars ir.Object) error {
	return r.engine.SetVariables(ctx, instanceID, vars)
}

// Variables returns the current variables of an instance.
func (r *Runtime) Variables(ctx context.Context, instanceID string) (ir.Object, error) {
	return r.engine.Variables(ctx, instanceID)
}

// Close closes closable listeners and then the store.
func (r *Runtime) Close() error {
	var err error
	for _, l := range r.listeners {
		if c, ok := l.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return multierr.Append(err, r.store.Close())
}
