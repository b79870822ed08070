package ir

import "time"

// NodeKind identifies the behaviour of a flow node.
type NodeKind string

const (
	// NodeStart is the single entry node of a definition. It auto-advances.
	NodeStart NodeKind = "START"

	// NodeUserTask is a wait state. Reaching it creates a Task and suspends
	// the instance until the task is completed.
	NodeUserTask NodeKind = "USER_TASK"

	// NodeEnd terminates the instance.
	NodeEnd NodeKind = "END"
)

// ValidNodeKinds lists the supported node kinds.
var ValidNodeKinds = map[NodeKind]bool{
	NodeStart:    true,
	NodeUserTask: true,
	NodeEnd:      true,
}

// InstanceStatus is the lifecycle state of a process instance.
type InstanceStatus string

const (
	InstanceActive    InstanceStatus = "ACTIVE"
	InstanceCompleted InstanceStatus = "COMPLETED"
)

// TaskStatus is the lifecycle state of a user task.
type TaskStatus string

const (
	TaskCreated   TaskStatus = "CREATED"
	TaskCompleted TaskStatus = "COMPLETED"
)

// FlowNode is a vertex of the flow graph.
type FlowNode struct {
	ID            string   `json:"id" yaml:"id"`
	Kind          NodeKind `json:"kind" yaml:"kind"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	Assignee      string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Documentation string   `json:"documentation,omitempty" yaml:"documentation,omitempty"`
}

// SequenceFlow is a directed edge between two flow nodes.
type SequenceFlow struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// ProcessDefinition is a deployed, versioned flow graph.
// Definitions are never mutated after deployment; instances reference them by ID.
type ProcessDefinition struct {
	ID         string         `json:"id"`
	Key        string         `json:"key"`
	Version    int            `json:"version"`
	Name       string         `json:"name,omitempty"`
	Hash       string         `json:"hash"`
	Nodes      []FlowNode     `json:"nodes"`
	Flows      []SequenceFlow `json:"flows"`
	DeployedAt time.Time      `json:"deployed_at"`
}

// Node returns the node with the given id.
func (d *ProcessDefinition) Node(id string) (FlowNode, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return FlowNode{}, false
}

// StartNode returns the START node of the definition.
func (d *ProcessDefinition) StartNode() (FlowNode, bool) {
	for _, n := range d.Nodes {
		if n.Kind == NodeStart {
			return n, true
		}
	}
	return FlowNode{}, false
}

// Outgoing returns the sequence flows leaving the given node, in declaration order.
func (d *ProcessDefinition) Outgoing(nodeID string) []SequenceFlow {
	var out []SequenceFlow
	for _, f := range d.Flows {
		if f.Source == nodeID {
			out = append(out, f)
		}
	}
	return out
}

// ProcessInstance is one execution of a definition.
//
// CurrentNode holds the single active node. It is empty once the instance
// has reached an END node and Status is InstanceCompleted.
type ProcessInstance struct {
	ID            string         `json:"id"`
	DefinitionID  string         `json:"definition_id"`
	DefinitionKey string         `json:"definition_key"`
	BusinessKey   string         `json:"business_key,omitempty"`
	CurrentNode   string         `json:"current_node,omitempty"`
	Status        InstanceStatus `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
}

// Task is a pending or completed user task.
type Task struct {
	ID                string     `json:"id"`
	ProcessInstanceID string     `json:"process_instance_id"`
	DefinitionID      string     `json:"definition_id"`
	NodeID            string     `json:"node_id"`
	Name              string     `json:"name"`
	Assignee          string     `json:"assignee,omitempty"`
	Status            TaskStatus `json:"status"`
	Seq               int64      `json:"seq"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// HistoricVariableInstance is an immutable snapshot of one variable write.
type HistoricVariableInstance struct {
	ID                string    `json:"id"`
	ProcessInstanceID string    `json:"process_instance_id"`
	TaskID            string    `json:"task_id,omitempty"`
	Name              string    `json:"name"`
	Value             Value     `json:"value"`
	Seq               int64     `json:"seq"`
	Time              time.Time `json:"time"`
}

// HistoricProcessInstance records the lifetime of an instance.
// EndedAt is set exactly once, when the instance reaches an END node.
type HistoricProcessInstance struct {
	ProcessInstanceID string     `json:"process_instance_id"`
	DefinitionID      string     `json:"definition_id"`
	DefinitionKey     string     `json:"definition_key"`
	BusinessKey       string     `json:"business_key,omitempty"`
	StartNode         string     `json:"start_node"`
	EndNode           string     `json:"end_node,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

// Finished reports whether the instance has ended.
func (h HistoricProcessInstance) Finished() bool {
	return h.EndedAt != nil
}

// HistoryEventType classifies audit log entries.
type HistoryEventType string

const (
	EventInstanceStarted   HistoryEventType = "INSTANCE_STARTED"
	EventActivityStarted   HistoryEventType = "ACTIVITY_STARTED"
	EventActivityCompleted HistoryEventType = "ACTIVITY_COMPLETED"
	EventTaskCreated       HistoryEventType = "TASK_CREATED"
	EventTaskCompleted     HistoryEventType = "TASK_COMPLETED"
	EventVariableSet       HistoryEventType = "VARIABLE_SET"
	EventInstanceEnded     HistoryEventType = "INSTANCE_ENDED"
)

// HistoryEvent is one append-only entry of an instance's audit trail.
// Entries are ordered by Seq, which is assigned from the engine's logical clock.
type HistoryEvent struct {
	ID                string           `json:"id"`
	Seq               int64            `json:"seq"`
	Time              time.Time        `json:"time"`
	ProcessInstanceID string           `json:"process_instance_id"`
	Type              HistoryEventType `json:"type"`
	NodeID            string           `json:"node_id,omitempty"`
	TaskID            string           `json:"task_id,omitempty"`
	Detail            string           `json:"detail,omitempty"`
}
