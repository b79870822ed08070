package history

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
)

// Sequencer hands out strictly increasing sequence numbers.
type Sequencer interface {
	Next() int64
}

// IDSource hands out unique ids.
type IDSource interface {
	Generate() string
}

// Recorder is the append-only history sink used by the engine.
// It is safe for concurrent use; each advance cycle gets its own Batch.
type Recorder struct {
	seq Sequencer
	ids IDSource
}

// NewRecorder creates a Recorder stamping rows from seq and ids.
func NewRecorder(seq Sequencer, ids IDSource) *Recorder {
	return &Recorder{seq: seq, ids: ids}
}

// Begin starts recording for one instance inside tx. Every row written
// through the batch carries the time at.
func (r *Recorder) Begin(tx store.Tx, instanceID string, at time.Time) *Batch {
	return &Batch{
		r:          r,
		tx:         tx,
		instanceID: instanceID,
		at:         at,
		events:     []ir.HistoryEvent{},
	}
}

// Batch writes the history of one advance cycle.
type Batch struct {
	r          *Recorder
	tx         store.Tx
	instanceID string
	at         time.Time
	events     []ir.HistoryEvent
}

// Events returns the events written so far, in seq order.
func (b *Batch) Events() []ir.HistoryEvent {
	return b.events
}

// RecordEvent appends one audit event.
func (b *Batch) RecordEvent(ctx context.Context, typ ir.HistoryEventType, nodeID, taskID, detail string) error {
	e := ir.HistoryEvent{
		ID:                b.r.ids.Generate(),
		Seq:               b.r.seq.Next(),
		Time:              b.at,
		ProcessInstanceID: b.instanceID,
		Type:              typ,
		NodeID:            nodeID,
		TaskID:            taskID,
		Detail:            detail,
	}
	if err := b.tx.InsertEvent(ctx, e); err != nil {
		return err
	}
	b.events = append(b.events, e)
	return nil
}

// RecordVariable appends a historic variable row and its VARIABLE_SET event.
// taskID is empty for writes that did not come from a task completion.
func (b *Batch) RecordVariable(ctx context.Context, taskID, name string, value ir.Value) error {
	encoded, err := ir.MarshalCanonical(value)
	if err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}

	h := ir.HistoricVariableInstance{
		ID:                b.r.ids.Generate(),
		ProcessInstanceID: b.instanceID,
		TaskID:            taskID,
		Name:              name,
		Value:             value,
		Seq:               b.r.seq.Next(),
		Time:              b.at,
	}
	if err := b.tx.InsertHistoricVariable(ctx, h); err != nil {
		return err
	}
	return b.RecordEvent(ctx, ir.EventVariableSet, "", taskID, name+"="+string(encoded))
}

// RecordInstanceStart opens the historic process instance and appends
// INSTANCE_STARTED.
func (b *Batch) RecordInstanceStart(ctx context.Context, inst ir.ProcessInstance, startNode string) error {
	h := ir.HistoricProcessInstance{
		ProcessInstanceID: inst.ID,
		DefinitionID:      inst.DefinitionID,
		DefinitionKey:     inst.DefinitionKey,
		BusinessKey:       inst.BusinessKey,
		StartNode:         startNode,
		StartedAt:         inst.StartedAt,
	}
	if err := b.tx.InsertHistoricInstance(ctx, h); err != nil {
		return err
	}
	return b.RecordEvent(ctx, ir.EventInstanceStarted, startNode, "", inst.DefinitionID)
}

// RecordInstanceEnd sets the end of the historic process instance and
// appends INSTANCE_ENDED. The end can be recorded only once.
func (b *Batch) RecordInstanceEnd(ctx context.Context, endNode string) error {
	at := b.at
	h := ir.HistoricProcessInstance{
		ProcessInstanceID: b.instanceID,
		EndNode:           endNode,
		EndedAt:           &at,
	}
	if err := b.tx.UpdateHistoricInstance(ctx, h); err != nil {
		return err
	}
	return b.RecordEvent(ctx, ir.EventInstanceEnded, endNode, "", "")
}
