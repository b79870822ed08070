package task

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procflow/internal/engine"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
	"github.com/roach88/procflow/internal/testutil"
)

func setup(t *testing.T) (*Service, *engine.Engine) {
	t.Helper()
	ctx := context.Background()

	s, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := engine.New(ctx, s,
		engine.WithIDGenerator(testutil.NewSequentialIDs("id")),
		engine.WithTimeSource(testutil.NewStepTime(testutil.Epoch, time.Second)),
	)
	require.NoError(t, err)

	_, err = e.Deploy(ctx, ir.ProcessDefinition{
		Key: "oneTaskProcess",
		Nodes: []ir.FlowNode{
			{ID: "theStart", Kind: ir.NodeStart},
			{ID: "theTask", Kind: ir.NodeUserTask, Name: "my task", Assignee: "kermit"},
			{ID: "theEnd", Kind: ir.NodeEnd},
		},
		Flows: []ir.SequenceFlow{
			{ID: "flow1", Source: "theStart", Target: "theTask"},
			{ID: "flow2", Source: "theTask", Target: "theEnd"},
		},
	})
	require.NoError(t, err)

	return NewService(s, e), e
}

func TestSingleResult(t *testing.T) {
	svc, e := setup(t)
	ctx := context.Background()

	_, err := svc.SingleResult(ctx, Query{Name: "my task"})
	assert.True(t, ir.IsNotFound(err))

	inst, err := e.Start(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)

	task, err := svc.SingleResult(ctx, Query{ProcessInstanceID: inst.ID, Name: "my task"})
	require.NoError(t, err)
	assert.Equal(t, "theTask", task.NodeID)
	assert.Equal(t, ir.TaskCreated, task.Status)

	_, err = e.Start(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)

	_, err = svc.SingleResult(ctx, Query{Name: "my task"})
	assert.True(t, ir.IsAmbiguous(err))
}

func TestListAndCount(t *testing.T) {
	svc, e := setup(t)
	ctx := context.Background()

	first, err := e.Start(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)
	second, err := e.Start(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)

	tasks, err := svc.List(ctx, Query{Assignee: "kermit"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ProcessInstanceID, "oldest first")
	assert.Equal(t, second.ID, tasks[1].ProcessInstanceID)

	n, err := svc.Count(ctx, Query{Assignee: "gonzo"})
	require.NoError(t, err)
	assert.Zero(t, n)

	none, err := svc.List(ctx, Query{NodeID: "theEnd"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestComplete(t *testing.T) {
	svc, e := setup(t)
	ctx := context.Background()

	inst, err := e.Start(ctx, "oneTaskProcess", nil)
	require.NoError(t, err)
	task, err := svc.SingleResult(ctx, Query{ProcessInstanceID: inst.ID})
	require.NoError(t, err)

	require.NoError(t, svc.Complete(ctx, task.ID, ir.Object{"form_outcome": ir.String("retry")}))

	n, err := svc.Count(ctx, Query{ProcessInstanceID: inst.ID})
	require.NoError(t, err)
	assert.Zero(t, n, "completed tasks are not listed")

	done, err := svc.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.TaskCompleted, done.Status)

	err = svc.Complete(ctx, task.ID, nil)
	assert.True(t, ir.IsAlreadyCompleted(err))

	_, err = svc.Get(ctx, "missing")
	assert.True(t, ir.IsNotFound(err))
}

func TestQueryDescribe(t *testing.T) {
	assert.Equal(t, "*", Query{}.describe())
	assert.Equal(t, "instance=i-1,name=my task", Query{ProcessInstanceID: "i-1", Name: "my task"}.describe())
}
