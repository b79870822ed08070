package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/procflow/internal/history"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
)

// Start creates an instance of the latest version of key and advances it to
// its first wait state or end. vars become the initial variables.
// vars is deep-copied first, so the caller may reuse it while the cycle runs.
//
// Fails with NotFound if no definition is deployed under key.
func (e *Engine) Start(ctx context.Context, key string, vars ir.Object) (ir.ProcessInstance, error) {
	return e.StartWithBusinessKey(ctx, key, "", vars)
}

// StartWithBusinessKey is Start with a caller-supplied business key.
func (e *Engine) StartWithBusinessKey(ctx context.Context, key, businessKey string, vars ir.Object) (ir.ProcessInstance, error) {
	vars = vars.Clone()
	id := e.ids.Generate()

	c, err := e.runCycle(ctx, id, func(tx store.Tx) (*cycle, error) {
		def, err := tx.LatestDefinition(ctx, key)
		if err != nil {
			return nil, err
		}
		start, ok := def.StartNode()
		if !ok {
			return nil, ir.InvalidDefinition(def.Key, []string{"definition has no START node"})
		}

		now := e.now()
		inst := ir.ProcessInstance{
			ID:            id,
			DefinitionID:  def.ID,
			DefinitionKey: def.Key,
			BusinessKey:   businessKey,
			CurrentNode:   start.ID,
			Status:        ir.InstanceActive,
			StartedAt:     now,
		}
		if err := tx.InsertInstance(ctx, inst); err != nil {
			return nil, err
		}

		c := e.newCycle(tx, def, inst, now)
		if err := c.hist.RecordInstanceStart(ctx, inst, start.ID); err != nil {
			return nil, err
		}
		if err := c.setVariables(ctx, "", vars); err != nil {
			return nil, err
		}
		return c, c.enter(ctx, start)
	})
	if err != nil {
		return ir.ProcessInstance{}, fmt.Errorf("start %s: %w", key, err)
	}

	e.logger.Info("process instance started",
		"instance_id", c.inst.ID,
		"definition_id", c.inst.DefinitionID,
		"current_node", c.inst.CurrentNode,
		"status", c.inst.Status,
	)
	return c.inst, nil
}

// CompleteTask completes a CREATED task, writes vars into the instance and
// advances the instance along the task's outgoing flow.
//
// Fails with NotFound for an unknown task and AlreadyCompleted for a task
// that was completed before. Of two concurrent completions of the same task
// exactly one succeeds.
func (e *Engine) CompleteTask(ctx context.Context, taskID string, vars ir.Object) error {
	vars = vars.Clone()
	var task ir.Task
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		task, err = tx.Task(ctx, taskID)
		return err
	})
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}

	c, err := e.runCycle(ctx, task.ProcessInstanceID, func(tx store.Tx) (*cycle, error) {
		task, err := tx.Task(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status == ir.TaskCompleted {
			return nil, ir.AlreadyCompleted(taskID)
		}

		c, err := e.resume(ctx, tx, task.ProcessInstanceID)
		if err != nil {
			return nil, err
		}
		if c.inst.CurrentNode != task.NodeID {
			return nil, fmt.Errorf("task %s waits at %s but instance %s is at %q",
				task.ID, task.NodeID, c.inst.ID, c.inst.CurrentNode)
		}
		node, ok := c.def.Node(task.NodeID)
		if !ok {
			return nil, ir.NotFound("node", task.NodeID)
		}

		if err := c.setVariables(ctx, task.ID, vars); err != nil {
			return nil, err
		}

		completedAt := c.now
		task.Status = ir.TaskCompleted
		task.CompletedAt = &completedAt
		if err := tx.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
		if err := c.hist.RecordEvent(ctx, ir.EventTaskCompleted, node.ID, task.ID, task.Name); err != nil {
			return nil, err
		}
		if err := c.hist.RecordEvent(ctx, ir.EventActivityCompleted, node.ID, "", node.Name); err != nil {
			return nil, err
		}
		return c, c.leave(ctx, node)
	})
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}

	e.logger.Info("task completed",
		"task_id", taskID,
		"instance_id", c.inst.ID,
		"current_node", c.inst.CurrentNode,
		"status", c.inst.Status,
	)
	return nil
}

// SetVariables writes vars into an ACTIVE instance without advancing it.
//
// Fails with NotFound for an unknown instance and AlreadyCompleted for a
// completed one.
func (e *Engine) SetVariables(ctx context.Context, instanceID string, vars ir.Object) error {
	vars = vars.Clone()
	_, err := e.runCycle(ctx, instanceID, func(tx store.Tx) (*cycle, error) {
		c, err := e.resume(ctx, tx, instanceID)
		if err != nil {
			return nil, err
		}
		return c, c.setVariables(ctx, "", vars)
	})
	if err != nil {
		return fmt.Errorf("set variables on %s: %w", instanceID, err)
	}
	return nil
}

// Instance returns the current state of an instance.
func (e *Engine) Instance(ctx context.Context, instanceID string) (ir.ProcessInstance, error) {
	var inst ir.ProcessInstance
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		inst, err = tx.Instance(ctx, instanceID)
		return err
	})
	return inst, err
}

// Variables returns the current variables of an instance.
// An instance without variables yields an empty Object.
func (e *Engine) Variables(ctx context.Context, instanceID string) (ir.Object, error) {
	var vars ir.Object
	err := e.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.Instance(ctx, instanceID); err != nil {
			return err
		}
		var err error
		vars, err = tx.Variables(ctx, instanceID)
		return err
	})
	return vars, err
}

// runCycle runs fn inside one transaction while holding the instance lock,
// then releases the lock and notifies listeners of the committed events.
func (e *Engine) runCycle(ctx context.Context, instanceID string, fn func(tx store.Tx) (*cycle, error)) (*cycle, error) {
	unlock, err := e.locks.acquire(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var c *cycle
	err = e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		c, err = fn(tx)
		return err
	})
	unlock()
	if err != nil {
		e.logger.Debug("advance cycle rolled back", "instance_id", instanceID, "error", err)
		return nil, err
	}

	e.notify(ctx, c.hist.Events())
	return c, nil
}

// cycle is the state of one advance cycle inside its transaction.
type cycle struct {
	e     *Engine
	tx    store.Tx
	def   ir.ProcessDefinition
	inst  ir.ProcessInstance
	hist  *history.Batch
	quota *QuotaEnforcer
	now   time.Time
}

func (e *Engine) newCycle(tx store.Tx, def ir.ProcessDefinition, inst ir.ProcessInstance, now time.Time) *cycle {
	return &cycle{
		e:     e,
		tx:    tx,
		def:   def,
		inst:  inst,
		hist:  e.recorder.Begin(tx, inst.ID, now),
		quota: NewQuotaEnforcer(e.maxSteps),
		now:   now,
	}
}

// resume locks an existing ACTIVE instance for a new cycle. The clock is
// raised past the instance's last seq and the cycle time is clamped to its
// last event time.
func (e *Engine) resume(ctx context.Context, tx store.Tx, instanceID string) (*cycle, error) {
	inst, err := tx.LockInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status == ir.InstanceCompleted {
		return nil, ir.AlreadyCompletedInstance(instanceID)
	}

	def, err := tx.DefinitionByID(ctx, inst.DefinitionID)
	if err != nil {
		return nil, err
	}

	lastSeq, lastTime, err := tx.LastEvent(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	e.clock.Observe(lastSeq)

	now := e.now()
	if now.Before(lastTime) {
		now = lastTime
	}
	return e.newCycle(tx, def, inst, now), nil
}

// setVariables writes each variable in key order and records its history.
func (c *cycle) setVariables(ctx context.Context, taskID string, vars ir.Object) error {
	for _, name := range vars.SortedKeys() {
		value := vars[name]
		if value == nil {
			value = ir.Null{}
		}
		if err := c.tx.PutVariable(ctx, c.inst.ID, name, value); err != nil {
			return err
		}
		if err := c.hist.RecordVariable(ctx, taskID, name, value); err != nil {
			return err
		}
	}
	return nil
}

// enter runs node and every automatic node after it, stopping at the first
// USER_TASK or END.
func (c *cycle) enter(ctx context.Context, node ir.FlowNode) error {
	for {
		if err := c.quota.Check(c.inst.ID); err != nil {
			c.e.logger.Error("max steps quota exceeded",
				"instance_id", c.inst.ID,
				"node_id", node.ID,
				"limit", c.quota.MaxSteps(),
			)
			return err
		}
		if err := c.hist.RecordEvent(ctx, ir.EventActivityStarted, node.ID, "", node.Name); err != nil {
			return err
		}

		switch node.Kind {
		case ir.NodeStart:
			if err := c.hist.RecordEvent(ctx, ir.EventActivityCompleted, node.ID, "", node.Name); err != nil {
				return err
			}
			next, err := c.next(node)
			if err != nil {
				return err
			}
			node = next

		case ir.NodeUserTask:
			return c.createTask(ctx, node)

		case ir.NodeEnd:
			if err := c.hist.RecordEvent(ctx, ir.EventActivityCompleted, node.ID, "", node.Name); err != nil {
				return err
			}
			return c.end(ctx, node)

		default:
			return ir.InvalidDefinition(c.def.Key, []string{fmt.Sprintf("node %q has unknown kind %q", node.ID, node.Kind)})
		}
	}
}

// leave follows the single outgoing flow of node.
func (c *cycle) leave(ctx context.Context, node ir.FlowNode) error {
	next, err := c.next(node)
	if err != nil {
		return err
	}
	return c.enter(ctx, next)
}

func (c *cycle) next(node ir.FlowNode) (ir.FlowNode, error) {
	out := c.def.Outgoing(node.ID)
	if len(out) != 1 {
		return ir.FlowNode{}, ir.InvalidDefinition(c.def.Key,
			[]string{fmt.Sprintf("node %q has %d outgoing flows, want 1", node.ID, len(out))})
	}
	target, ok := c.def.Node(out[0].Target)
	if !ok {
		return ir.FlowNode{}, ir.InvalidDefinition(c.def.Key,
			[]string{fmt.Sprintf("flow %q targets unknown node %q", out[0].ID, out[0].Target)})
	}
	return target, nil
}

func (c *cycle) createTask(ctx context.Context, node ir.FlowNode) error {
	task := ir.Task{
		ID:                c.e.ids.Generate(),
		ProcessInstanceID: c.inst.ID,
		DefinitionID:      c.def.ID,
		NodeID:            node.ID,
		Name:              node.Name,
		Assignee:          node.Assignee,
		Status:            ir.TaskCreated,
		Seq:               c.e.clock.Next(),
		CreatedAt:         c.now,
	}
	if err := c.tx.InsertTask(ctx, task); err != nil {
		return err
	}

	c.inst.CurrentNode = node.ID
	if err := c.tx.UpdateInstance(ctx, c.inst); err != nil {
		return err
	}

	c.e.logger.Debug("task created", "task_id", task.ID, "instance_id", c.inst.ID, "node_id", node.ID)
	return c.hist.RecordEvent(ctx, ir.EventTaskCreated, node.ID, task.ID, task.Name)
}

func (c *cycle) end(ctx context.Context, node ir.FlowNode) error {
	endedAt := c.now
	c.inst.CurrentNode = ""
	c.inst.Status = ir.InstanceCompleted
	c.inst.EndedAt = &endedAt
	if err := c.tx.UpdateInstance(ctx, c.inst); err != nil {
		return err
	}
	return c.hist.RecordInstanceEnd(ctx, node.ID)
}
