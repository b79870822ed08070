package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/procflow/internal/config"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/testutil"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Datasource.DSN = filepath.Join(t.TempDir(), "procflow.db")
	return cfg
}

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	defaults := []Option{
		WithIDGenerator(testutil.NewSequentialIDs("id")),
		WithTimeSource(testutil.NewStepTime(testutil.Epoch, time.Second)),
	}
	rt, err := New(context.Background(), testConfig(t), append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func deployOneTask(t *testing.T, rt *Runtime) ir.ProcessDefinition {
	t.Helper()
	defs, err := rt.DeployFile(context.Background(), "testdata/one_task_process.yaml")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	return defs[0]
}

// TestOneTaskProcess drives the reference scenario through the facade only.
func TestOneTaskProcess(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	deployOneTask(t, rt)

	inst, err := rt.StartProcessInstanceByKey(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exists, err := rt.CreateExecutionQuery().
			ProcessInstanceID(inst.ID).
			ActivityID("theTask").
			Exists(ctx)
		return err == nil && exists
	}, 5*time.Second, 10*time.Millisecond)

	task, err := rt.CreateTaskQuery().
		ProcessInstanceID(inst.ID).
		TaskName("my task").
		SingleResult(ctx)
	require.NoError(t, err)

	require.NoError(t, rt.CompleteTask(ctx, task.ID, ir.Object{"form_outcome": ir.String("retry")}))

	variable, err := rt.CreateHistoricVariableInstanceQuery().
		ProcessInstanceID(inst.ID).
		VariableName("form_outcome").
		SingleResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.String("retry"), variable.Value)
	assert.Equal(t, task.ID, variable.TaskID)

	finished, err := rt.CreateHistoricProcessInstanceQuery().
		ProcessInstanceID(inst.ID).
		Finished().
		SingleResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "theEnd", finished.EndNode)
	require.NotNil(t, finished.EndedAt)

	exists, err := rt.CreateExecutionQuery().ProcessInstanceID(inst.ID).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "completed instance has no execution")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Datasource.Pool.MaxIdle = 50

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid config")
}

func TestDeployFile(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	first := deployOneTask(t, rt)
	assert.Equal(t, 1, first.Version)

	again, err := rt.DeployFile(ctx, "testdata")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first.ID, again[0].ID, "unchanged definition is not redeployed")

	latest, err := rt.Definition(ctx, "oneTaskProcess")
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	_, err = rt.DeployFile(ctx, "testdata/missing.yaml")
	assert.Error(t, err)
}

func TestExecutionQuery(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	deployOneTask(t, rt)

	_, err := rt.CreateExecutionQuery().ActivityID("theTask").SingleResult(ctx)
	assert.True(t, ir.IsNotFound(err))

	a, err := rt.StartProcessInstanceByKey(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)
	_, err = rt.StartProcessInstanceByKeyAndBusinessKey(ctx, "oneTaskProcess", "order-7", nil)
	require.NoError(t, err)

	exec, err := rt.CreateExecutionQuery().ProcessInstanceID(a.ID).SingleResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, Execution{ID: a.ID, ProcessInstanceID: a.ID, ActivityID: "theTask"}, exec)

	_, err = rt.CreateExecutionQuery().ActivityID("theTask").SingleResult(ctx)
	assert.True(t, ir.IsAmbiguous(err))

	all, err := rt.CreateExecutionQuery().ActivityID("theTask").List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := rt.CreateExecutionQuery().ActivityID("theEnd").List(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTaskQuery(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	deployOneTask(t, rt)

	_, err := rt.StartProcessInstanceByKey(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)

	n, err := rt.CreateTaskQuery().TaskAssignee("kermit").TaskDefinitionKey("theTask").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tasks, err := rt.CreateTaskQuery().TaskAssignee("fozzie").List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestHistoricVariableQuery_LatestValue(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	deployOneTask(t, rt)

	inst, err := rt.StartProcessInstanceByKey(ctx, "oneTaskProcess", ir.Object{
		"form_outcome": ir.String("draft"),
		"attempts":     ir.Int(1),
	})
	require.NoError(t, err)
	require.NoError(t, rt.SetVariables(ctx, inst.ID, ir.Object{"form_outcome": ir.String("retry")}))

	vars, err := rt.CreateHistoricVariableInstanceQuery().ProcessInstanceID(inst.ID).List(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "attempts", vars[0].Name)
	assert.Equal(t, "form_outcome", vars[1].Name)
	assert.Equal(t, ir.String("retry"), vars[1].Value)

	_, err = rt.CreateHistoricVariableInstanceQuery().ProcessInstanceID(inst.ID).SingleResult(ctx)
	assert.True(t, ir.IsAmbiguous(err))

	_, err = rt.CreateHistoricVariableInstanceQuery().VariableName("missing").SingleResult(ctx)
	assert.True(t, ir.IsNotFound(err))

	current, err := rt.Variables(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.String("retry"), current["form_outcome"])
}

func TestHistoricProcessInstanceQuery(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	deployOneTask(t, rt)

	inst, err := rt.StartProcessInstanceByKey(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)

	_, err = rt.CreateHistoricProcessInstanceQuery().ProcessInstanceID(inst.ID).Finished().SingleResult(ctx)
	assert.True(t, ir.IsNotFound(err), "not finished yet")

	n, err := rt.CreateHistoricProcessInstanceQuery().ProcessDefinitionKey("oneTaskProcess").Unfinished().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	running, err := rt.CreateHistoricProcessInstanceQuery().ProcessInstanceID(inst.ID).SingleResult(ctx)
	require.NoError(t, err)
	assert.False(t, running.Finished())
}

func TestCompleteTask_Concurrent(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	deployOneTask(t, rt)

	inst, err := rt.StartProcessInstanceByKey(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)
	task, err := rt.CreateTaskQuery().ProcessInstanceID(inst.ID).SingleResult(ctx)
	require.NoError(t, err)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			err := rt.CompleteTask(ctx, task.ID, nil)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, already int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case ir.IsAlreadyCompleted(err):
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, already)
}

type closingListener struct {
	mu     sync.Mutex
	events []ir.HistoryEventType
	closed bool
	err    error
}

func (l *closingListener) OnEvent(_ context.Context, e ir.HistoryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e.Type)
}

func (l *closingListener) Close() error {
	l.closed = true
	return l.err
}

func TestClose_ClosesListeners(t *testing.T) {
	l := &closingListener{err: errors.New("flush failed")}
	rt, err := New(context.Background(), testConfig(t), WithListeners(l))
	require.NoError(t, err)

	deployOneTask(t, rt)
	_, err = rt.StartProcessInstanceByKey(context.Background(), "oneTaskProcess", nil)
	require.NoError(t, err)

	l.mu.Lock()
	assert.Contains(t, l.events, ir.EventTaskCreated)
	l.mu.Unlock()

	err = rt.Close()
	assert.ErrorContains(t, err, "flush failed")
	assert.True(t, l.closed)
}
