package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procflow/internal/ir"
)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testBackends returns a SQLite store plus a PostgreSQL store when
// PROCFLOW_TEST_POSTGRES_DSN is set.
func testBackends(t *testing.T) map[Driver]*Store {
	t.Helper()
	backends := map[Driver]*Store{DriverSQLite: createTestStore(t)}

	if dsn := os.Getenv("PROCFLOW_TEST_POSTGRES_DSN"); dsn != "" {
		s, err := Open(context.Background(), Config{Driver: DriverPostgres, DSN: dsn, Pool: DefaultPoolConfig()})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		backends[DriverPostgres] = s
	}
	return backends
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestDefinition returns a one-task definition with a unique id and key.
func createTestDefinition() ir.ProcessDefinition {
	key := "proc-" + uuid.NewString()
	def := ir.ProcessDefinition{
		ID:      key + ":1:" + uuid.NewString(),
		Key:     key,
		Version: 1,
		Name:    "One Task",
		Nodes: []ir.FlowNode{
			{ID: "theStart", Kind: ir.NodeStart},
			{ID: "theTask", Kind: ir.NodeUserTask, Name: "my task", Assignee: "kermit"},
			{ID: "theEnd", Kind: ir.NodeEnd},
		},
		Flows: []ir.SequenceFlow{
			{ID: "flow1", Source: "theStart", Target: "theTask"},
			{ID: "flow2", Source: "theTask", Target: "theEnd"},
		},
		DeployedAt: testEpoch,
	}
	def.Hash = ir.MustDefinitionHash(def)
	return def
}

// createTestInstance returns an ACTIVE instance of def parked at theTask.
func createTestInstance(def ir.ProcessDefinition) ir.ProcessInstance {
	return ir.ProcessInstance{
		ID:            uuid.NewString(),
		DefinitionID:  def.ID,
		DefinitionKey: def.Key,
		CurrentNode:   "theTask",
		Status:        ir.InstanceActive,
		StartedAt:     testEpoch.Add(time.Second),
	}
}

// createTestTask returns a CREATED task for inst at theTask.
func createTestTask(inst ir.ProcessInstance, seq int64) ir.Task {
	return ir.Task{
		ID:                uuid.NewString(),
		ProcessInstanceID: inst.ID,
		DefinitionID:      inst.DefinitionID,
		NodeID:            "theTask",
		Name:              "my task",
		Assignee:          "kermit",
		Status:            ir.TaskCreated,
		Seq:               seq,
		CreatedAt:         testEpoch.Add(2 * time.Second),
	}
}

// seedInstance stores a definition and an instance of it.
func seedInstance(t *testing.T, s *Store) (ir.ProcessDefinition, ir.ProcessInstance) {
	t.Helper()
	def := createTestDefinition()
	inst := createTestInstance(def)
	err := s.Update(context.Background(), func(tx Tx) error {
		if err := tx.InsertDefinition(context.Background(), def); err != nil {
			return err
		}
		return tx.InsertInstance(context.Background(), inst)
	})
	require.NoError(t, err)
	return def, inst
}
