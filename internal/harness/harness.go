package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/roach88/procflow/internal/config"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/runtime"
	"github.com/roach88/procflow/internal/testutil"
)

// Harness runs the steps of one scenario against its own runtime.
type Harness struct {
	rt        *runtime.Runtime
	logger    *slog.Logger
	instances map[string]string
	order     []string
}

// Run executes a scenario in a fresh database and returns its result.
//
// Failed expectations and assertions are reported in the result. The
// returned error is reserved for runs that could not be carried out, such
// as a definition that fails to deploy.
func Run(ctx context.Context, scenario *Scenario) (result *Result, err error) {
	dir, err := os.MkdirTemp("", "procflow-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer func() {
		err = multierr.Append(err, os.RemoveAll(dir))
	}()

	cfg := config.Default()
	cfg.Datasource.DSN = filepath.Join(dir, "scenario.db")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := runtime.New(ctx, cfg,
		runtime.WithIDGenerator(testutil.NewSequentialIDs("id")),
		runtime.WithTimeSource(testutil.NewStepTime(testutil.Epoch, time.Second)),
		runtime.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	for _, path := range scenario.Definitions {
		if _, err := rt.DeployFile(ctx, path); err != nil {
			return nil, fmt.Errorf("failed to deploy definitions: %w", err)
		}
	}

	h := &Harness{
		rt:        rt,
		logger:    logger,
		instances: map[string]string{},
	}

	result = NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	trace, err := h.trace(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect trace: %w", err)
	}
	result.Trace = trace
	for alias, id := range h.instances {
		result.Instances[alias] = id
	}

	actx := &AssertionContext{Ctx: ctx, Runtime: rt, Instances: h.instances}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step and records any unmet expectation.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	instance, err := h.apply(ctx, step)

	expect := step.Expect
	if expect == nil {
		expect = &ExpectClause{}
	}

	if expect.Error != "" {
		got := ir.CodeOf(err)
		if string(got) != expect.Error {
			result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %v", i, expect.Error, err))
		}
		return
	}
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		return
	}

	if expect.Activity != "" {
		ok, err := h.rt.CreateExecutionQuery().
			ProcessInstanceID(instance).
			ActivityID(expect.Activity).
			Exists(ctx)
		if err != nil || !ok {
			result.AddError(fmt.Sprintf("steps[%d]: expected instance to wait at %s", i, expect.Activity))
		}
	}
	if expect.Completed {
		if _, err := h.rt.History().QueryFinishedInstance(ctx, instance); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: expected instance to be completed: %v", i, err))
		}
	}

	h.logger.Info("scenario step completed", "step", i, "instance_id", instance)
}

// apply performs the step and returns the id of the instance it touched.
func (h *Harness) apply(ctx context.Context, step Step) (string, error) {
	switch {
	case step.Start != nil:
		vars, err := ir.ObjectFromMap(step.Start.Variables)
		if err != nil {
			return "", err
		}
		inst, err := h.rt.StartProcessInstanceByKeyAndBusinessKey(ctx, step.Start.Key, step.Start.BusinessKey, vars)
		if err != nil {
			return "", err
		}
		h.instances[step.Start.As] = inst.ID
		h.order = append(h.order, step.Start.As)
		return inst.ID, nil

	case step.Complete != nil:
		instance, err := h.resolve(step.Complete.Instance)
		if err != nil {
			return "", err
		}
		vars, err := ir.ObjectFromMap(step.Complete.Variables)
		if err != nil {
			return "", err
		}
		task, err := h.rt.CreateTaskQuery().
			ProcessInstanceID(instance).
			TaskName(step.Complete.Task).
			SingleResult(ctx)
		if err != nil {
			return instance, err
		}
		return instance, h.rt.CompleteTask(ctx, task.ID, vars)

	case step.SetVariables != nil:
		instance, err := h.resolve(step.SetVariables.Instance)
		if err != nil {
			return "", err
		}
		vars, err := ir.ObjectFromMap(step.SetVariables.Variables)
		if err != nil {
			return "", err
		}
		return instance, h.rt.SetVariables(ctx, instance, vars)
	}
	return "", fmt.Errorf("empty step")
}

func (h *Harness) resolve(alias string) (string, error) {
	id, ok := h.instances[alias]
	if !ok {
		return "", fmt.Errorf("instance %q was not started", alias)
	}
	return id, nil
}

// trace merges the history of every started instance in seq order.
func (h *Harness) trace(ctx context.Context) ([]TraceEvent, error) {
	trace := []TraceEvent{}
	for _, alias := range h.order {
		events, err := h.rt.History().Events(ctx, h.instances[alias])
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			trace = append(trace, TraceEvent{
				Seq:      e.Seq,
				Instance: alias,
				Type:     string(e.Type),
				Node:     e.NodeID,
				Detail:   e.Detail,
			})
		}
	}
	sort.Slice(trace, func(i, j int) bool { return trace[i].Seq < trace[j].Seq })
	return trace, nil
}
