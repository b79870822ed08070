package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
	"github.com/roach88/procflow/internal/testutil"
)

func TestQuotaEnforcer_WithinLimit(t *testing.T) {
	q := NewQuotaEnforcer(10)

	for i := 0; i < 10; i++ {
		assert.NoError(t, q.Check("inst-1"), "step %d should be allowed", i+1)
	}

	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.MaxSteps())
}

func TestQuotaEnforcer_ExceedsLimit(t *testing.T) {
	q := NewQuotaEnforcer(5)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Check("inst-1"))
	}

	err := q.Check("inst-1")
	require.Error(t, err)
	assert.True(t, ir.IsQuotaExceeded(err))

	var pe *ir.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "inst-1", pe.ID)
	assert.Contains(t, pe.Message, "5 steps")
}

func TestQuotaEnforcer_ZeroDisablesLimit(t *testing.T) {
	q := NewQuotaEnforcer(0)
	for i := 0; i < 5000; i++ {
		require.NoError(t, q.Check("inst-1"))
	}
}

func TestQuota_StartRollsBack(t *testing.T) {
	// oneTaskProcess enters two nodes on start: theStart and theTask.
	e, s := setupTestEngine(t, WithMaxSteps(1))
	ctx := context.Background()
	deployOneTask(t, e)

	_, err := e.Start(ctx, "oneTaskProcess", ir.Object{"x": ir.Int(1)})
	require.Error(t, err)
	assert.True(t, ir.IsQuotaExceeded(err))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		instances, err := tx.FindInstances(ctx, store.InstanceQuery{DefinitionKey: "oneTaskProcess"})
		require.NoError(t, err)
		assert.Empty(t, instances, "failed cycle left an instance behind")

		tasks, err := tx.FindTasks(ctx, store.TaskQuery{})
		require.NoError(t, err)
		assert.Empty(t, tasks)

		writes, err := tx.FindHistoricVariables(ctx, store.HistoricVariableQuery{Name: "x"})
		require.NoError(t, err)
		assert.Empty(t, writes)

		historic, err := tx.FindHistoricInstances(ctx, store.HistoricInstanceQuery{DefinitionKey: "oneTaskProcess"})
		require.NoError(t, err)
		assert.Empty(t, historic)
		return nil
	}))
}

func TestQuota_ExactLimitAllowed(t *testing.T) {
	e, _ := setupTestEngine(t, WithMaxSteps(2))
	deployOneTask(t, e)

	inst, err := e.Start(context.Background(), "oneTaskProcess", nil)
	require.NoError(t, err)
	assert.Equal(t, "theTask", inst.CurrentNode)
}

// A looping definition can only exist if it was written to the store
// without going through Deploy.
func TestQuota_StopsUnvalidatedLoop(t *testing.T) {
	e, s := setupTestEngine(t, WithMaxSteps(5))
	ctx := context.Background()

	loop := ir.ProcessDefinition{
		ID:      "loop:1:x",
		Key:     "loop",
		Version: 1,
		Nodes: []ir.FlowNode{
			{ID: "a", Kind: ir.NodeStart},
			{ID: "b", Kind: ir.NodeStart},
		},
		Flows: []ir.SequenceFlow{
			{ID: "ab", Source: "a", Target: "b"},
			{ID: "ba", Source: "b", Target: "a"},
		},
		DeployedAt: testutil.Epoch,
	}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.InsertDefinition(ctx, loop)
	}))

	_, err := e.Start(ctx, "loop", nil)
	assert.True(t, ir.IsQuotaExceeded(err))
}

func TestQuota_DefaultMaxSteps(t *testing.T) {
	assert.Equal(t, 1000, DefaultMaxSteps)
}
