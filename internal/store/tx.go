package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/querysql"
)

// Tx is one unit of work against the store.
//
// Lookups by id return an ir NotFound error when the row is absent.
// Find methods return rows matching every non-empty criterion, in
// deterministic order, and an empty slice when nothing matches.
type Tx interface {
	InsertDefinition(ctx context.Context, def ir.ProcessDefinition) error
	LatestDefinition(ctx context.Context, key string) (ir.ProcessDefinition, error)
	DefinitionByID(ctx context.Context, id string) (ir.ProcessDefinition, error)
	ListDefinitions(ctx context.Context) ([]ir.ProcessDefinition, error)

	InsertInstance(ctx context.Context, inst ir.ProcessInstance) error
	Instance(ctx context.Context, id string) (ir.ProcessInstance, error)
	// LockInstance reads the instance and, where the database supports
	// it, locks the row until the transaction ends.
	LockInstance(ctx context.Context, id string) (ir.ProcessInstance, error)
	UpdateInstance(ctx context.Context, inst ir.ProcessInstance) error
	FindInstances(ctx context.Context, q InstanceQuery) ([]ir.ProcessInstance, error)

	InsertTask(ctx context.Context, task ir.Task) error
	Task(ctx context.Context, id string) (ir.Task, error)
	UpdateTask(ctx context.Context, task ir.Task) error
	FindTasks(ctx context.Context, q TaskQuery) ([]ir.Task, error)

	PutVariable(ctx context.Context, instanceID, name string, value ir.Value) error
	Variables(ctx context.Context, instanceID string) (ir.Object, error)

	InsertHistoricVariable(ctx context.Context, h ir.HistoricVariableInstance) error
	FindHistoricVariables(ctx context.Context, q HistoricVariableQuery) ([]ir.HistoricVariableInstance, error)
	InsertHistoricInstance(ctx context.Context, h ir.HistoricProcessInstance) error
	UpdateHistoricInstance(ctx context.Context, h ir.HistoricProcessInstance) error
	FindHistoricInstances(ctx context.Context, q HistoricInstanceQuery) ([]ir.HistoricProcessInstance, error)
	InsertEvent(ctx context.Context, e ir.HistoryEvent) error
	FindEvents(ctx context.Context, instanceID string) ([]ir.HistoryEvent, error)
	// LastEvent returns the highest seq and latest time recorded for an
	// instance, or zero values when it has no events.
	LastEvent(ctx context.Context, instanceID string) (int64, time.Time, error)

	// MaxSeq returns the highest logical sequence number stored, or 0.
	MaxSeq(ctx context.Context) (int64, error)
}

// InstanceQuery selects process instances.
type InstanceQuery struct {
	ID            string
	DefinitionKey string
	BusinessKey   string
	CurrentNode   string
	Status        ir.InstanceStatus
	Limit         int
}

// TaskQuery selects tasks.
type TaskQuery struct {
	ID                string
	ProcessInstanceID string
	Name              string
	NodeID            string
	Assignee          string
	Status            ir.TaskStatus
	Limit             int
}

// HistoricVariableQuery selects historic variable writes.
type HistoricVariableQuery struct {
	ProcessInstanceID string
	Name              string
	TaskID            string
	Limit             int
}

// HistoricInstanceQuery selects historic process instances.
// Finished restricts results to instances with an end time.
type HistoricInstanceQuery struct {
	ProcessInstanceID string
	DefinitionKey     string
	Finished          bool
	Unfinished        bool
	Limit             int
}

// tx implements Tx over a *sql.Tx.
type tx struct {
	tx      *sql.Tx
	queries *querysql.Compiler
}

var _ Tx = (*tx)(nil)

// query runs a compiled select.
func (t *tx) query(ctx context.Context, q querysql.Select) (*sql.Rows, error) {
	sqlText, params, err := t.queries.Compile(q)
	if err != nil {
		return nil, err
	}
	return t.tx.QueryContext(ctx, sqlText, params...)
}

// row runs a compiled select expected to return at most one row.
func (t *tx) row(ctx context.Context, q querysql.Select) (*sql.Row, error) {
	sqlText, params, err := t.queries.Compile(q)
	if err != nil {
		return nil, err
	}
	return t.tx.QueryRowContext(ctx, sqlText, params...), nil
}

// MaxSeq implements Tx.
func (t *tx) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		SELECT MAX(m) FROM (
			SELECT MAX(seq) AS m FROM tasks
			UNION ALL SELECT MAX(seq) AS m FROM historic_variables
			UNION ALL SELECT MAX(seq) AS m FROM history_events
		) AS seqs
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}
