package runtime

import (
	"context"
	"sort"
	"strings"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
	"github.com/roach88/procflow/internal/task"
)

// Execution is the active path of an instance. With a single token per
// instance its id is the instance id.
type Execution struct {
	ID                string `json:"id"`
	ProcessInstanceID string `json:"process_instance_id"`
	ActivityID        string `json:"activity_id"`
}

// ExecutionQuery selects executions of active instances.
type ExecutionQuery struct {
	store store.Backend
	q     store.InstanceQuery
}

// CreateExecutionQuery starts a query over active executions.
func (r *Runtime) CreateExecutionQuery() *ExecutionQuery {
	return &ExecutionQuery{
		store: r.store,
		q:     store.InstanceQuery{Status: ir.InstanceActive},
	}
}

// ActivityID restricts results to executions waiting at node id.
func (q *ExecutionQuery) ActivityID(id string) *ExecutionQuery {
	q.q.CurrentNode = id
	return q
}

// ProcessInstanceID restricts results to one instance.
func (q *ExecutionQuery) ProcessInstanceID(id string) *ExecutionQuery {
	q.q.ID = id
	return q
}

// List returns all matching executions.
func (q *ExecutionQuery) List(ctx context.Context) ([]Execution, error) {
	return q.find(ctx, 0)
}

// Exists reports whether any execution matches.
func (q *ExecutionQuery) Exists(ctx context.Context) (bool, error) {
	found, err := q.find(ctx, 1)
	return len(found) > 0, err
}

// SingleResult returns the only matching execution.
func (q *ExecutionQuery) SingleResult(ctx context.Context) (Execution, error) {
	found, err := q.find(ctx, 2)
	if err != nil {
		return Execution{}, err
	}
	switch len(found) {
	case 0:
		return Execution{}, ir.NotFound("execution", describe("instance", q.q.ID, "activity", q.q.CurrentNode))
	case 1:
		return found[0], nil
	default:
		return Execution{}, ir.AmbiguousResult("execution", len(found))
	}
}

func (q *ExecutionQuery) find(ctx context.Context, limit int) ([]Execution, error) {
	sq := q.q
	sq.Limit = limit

	var instances []ir.ProcessInstance
	err := q.store.View(ctx, func(tx store.Tx) error {
		var err error
		instances, err = tx.FindInstances(ctx, sq)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Execution, 0, len(instances))
	for _, inst := range instances {
		out = append(out, Execution{ID: inst.ID, ProcessInstanceID: inst.ID, ActivityID: inst.CurrentNode})
	}
	return out, nil
}

// TaskQuery selects open tasks.
type TaskQuery struct {
	tasks *task.Service
	q     task.Query
}

// CreateTaskQuery starts a query over open tasks.
func (r *Runtime) CreateTaskQuery() *TaskQuery {
	return &TaskQuery{tasks: r.tasks}
}

// ProcessInstanceID restricts results to one instance.
func (q *TaskQuery) ProcessInstanceID(id string) *TaskQuery {
	q.q.ProcessInstanceID = id
	return q
}

// TaskName restricts results to tasks with the given name.
func (q *TaskQuery) TaskName(name string) *TaskQuery {
	q.q.Name = name
	return q
}

// TaskAssignee restricts results to tasks assigned to assignee.
func (q *TaskQuery) TaskAssignee(assignee string) *TaskQuery {
	q.q.Assignee = assignee
	return q
}

// TaskDefinitionKey restricts results to tasks created by node id.
func (q *TaskQuery) TaskDefinitionKey(nodeID string) *TaskQuery {
	q.q.NodeID = nodeID
	return q
}

// SingleResult returns the only matching task.
func (q *TaskQuery) SingleResult(ctx context.Context) (ir.Task, error) {
	return q.tasks.SingleResult(ctx, q.q)
}

// List returns matching tasks, oldest first.
func (q *TaskQuery) List(ctx context.Context) ([]ir.Task, error) {
	return q.tasks.List(ctx, q.q)
}

// Count returns the number of matching tasks.
func (q *TaskQuery) Count(ctx context.Context) (int, error) {
	return q.tasks.Count(ctx, q.q)
}

// HistoricVariableInstanceQuery selects historic variables. Each variable
// of an instance appears once, carrying its latest value.
type HistoricVariableInstanceQuery struct {
	rt *Runtime
	q  store.HistoricVariableQuery
}

// CreateHistoricVariableInstanceQuery starts a query over variable history.
func (r *Runtime) CreateHistoricVariableInstanceQuery() *HistoricVariableInstanceQuery {
	return &HistoricVariableInstanceQuery{rt: r}
}

// ProcessInstanceID restricts results to one instance.
func (q *HistoricVariableInstanceQuery) ProcessInstanceID(id string) *HistoricVariableInstanceQuery {
	q.q.ProcessInstanceID = id
	return q
}

// VariableName restricts results to one variable name.
func (q *HistoricVariableInstanceQuery) VariableName(name string) *HistoricVariableInstanceQuery {
	q.q.Name = name
	return q
}

// List returns the latest write of each matching variable, ordered by
// the seq of that write.
func (q *HistoricVariableInstanceQuery) List(ctx context.Context) ([]ir.HistoricVariableInstance, error) {
	writes, err := q.rt.history.FindVariables(ctx, q.q)
	if err != nil {
		return nil, err
	}

	type key struct{ instance, name string }
	latest := make(map[key]ir.HistoricVariableInstance, len(writes))
	for _, w := range writes {
		latest[key{w.ProcessInstanceID, w.Name}] = w
	}

	out := make([]ir.HistoricVariableInstance, 0, len(latest))
	for _, w := range latest {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// SingleResult returns the only matching variable.
func (q *HistoricVariableInstanceQuery) SingleResult(ctx context.Context) (ir.HistoricVariableInstance, error) {
	found, err := q.List(ctx)
	if err != nil {
		return ir.HistoricVariableInstance{}, err
	}
	switch len(found) {
	case 0:
		return ir.HistoricVariableInstance{}, ir.NotFound("historic variable",
			describe("instance", q.q.ProcessInstanceID, "name", q.q.Name))
	case 1:
		return found[0], nil
	default:
		return ir.HistoricVariableInstance{}, ir.AmbiguousResult("historic variable", len(found))
	}
}

// HistoricProcessInstanceQuery selects historic process instances.
type HistoricProcessInstanceQuery struct {
	rt *Runtime
	q  store.HistoricInstanceQuery
}

// CreateHistoricProcessInstanceQuery starts a query over instance history.
func (r *Runtime) CreateHistoricProcessInstanceQuery() *HistoricProcessInstanceQuery {
	return &HistoricProcessInstanceQuery{rt: r}
}

// ProcessInstanceID restricts results to one instance.
func (q *HistoricProcessInstanceQuery) ProcessInstanceID(id string) *HistoricProcessInstanceQuery {
	q.q.ProcessInstanceID = id
	return q
}

// ProcessDefinitionKey restricts results to instances of one key.
func (q *HistoricProcessInstanceQuery) ProcessDefinitionKey(key string) *HistoricProcessInstanceQuery {
	q.q.DefinitionKey = key
	return q
}

// Finished restricts results to instances that have ended.
func (q *HistoricProcessInstanceQuery) Finished() *HistoricProcessInstanceQuery {
	q.q.Finished = true
	q.q.Unfinished = false
	return q
}

// Unfinished restricts results to instances still running.
func (q *HistoricProcessInstanceQuery) Unfinished() *HistoricProcessInstanceQuery {
	q.q.Unfinished = true
	q.q.Finished = false
	return q
}

// List returns matching instances ordered by start time.
func (q *HistoricProcessInstanceQuery) List(ctx context.Context) ([]ir.HistoricProcessInstance, error) {
	return q.rt.history.FindInstances(ctx, q.q)
}

// Count returns the number of matching instances.
func (q *HistoricProcessInstanceQuery) Count(ctx context.Context) (int, error) {
	found, err := q.List(ctx)
	return len(found), err
}

// SingleResult returns the only matching instance.
func (q *HistoricProcessInstanceQuery) SingleResult(ctx context.Context) (ir.HistoricProcessInstance, error) {
	sq := q.q
	sq.Limit = 2
	found, err := q.rt.history.FindInstances(ctx, sq)
	if err != nil {
		return ir.HistoricProcessInstance{}, err
	}
	switch len(found) {
	case 0:
		return ir.HistoricProcessInstance{}, ir.NotFound("historic process instance",
			describe("instance", q.q.ProcessInstanceID, "key", q.q.DefinitionKey))
	case 1:
		return found[0], nil
	default:
		return ir.HistoricProcessInstance{}, ir.AmbiguousResult("historic process instance", len(found))
	}
}

// describe renders key/value criteria pairs for NotFound messages.
func describe(kv ...string) string {
	parts := []string{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			parts = append(parts, kv[i]+"="+kv[i+1])
		}
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ",")
}
