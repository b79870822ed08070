// Package task surfaces the wait states of process instances as user tasks.
package task

import (
	"context"
	"strings"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
)

// Completer advances an instance past a completed task.
// Implemented by *engine.Engine.
type Completer interface {
	CompleteTask(ctx context.Context, taskID string, vars ir.Object) error
}

// Query selects open tasks. Empty fields match everything.
type Query struct {
	ProcessInstanceID string
	Name              string
	NodeID            string
	Assignee          string
}

func (q Query) storeQuery(limit int) store.TaskQuery {
	return store.TaskQuery{
		ProcessInstanceID: q.ProcessInstanceID,
		Name:              q.Name,
		NodeID:            q.NodeID,
		Assignee:          q.Assignee,
		Status:            ir.TaskCreated,
		Limit:             limit,
	}
}

// Service lists and completes tasks.
type Service struct {
	store     store.Backend
	completer Completer
}

// NewService creates a Service reading from b and completing through c.
func NewService(b store.Backend, c Completer) *Service {
	return &Service{store: b, completer: c}
}

// List returns every open task matching q, oldest first.
func (s *Service) List(ctx context.Context, q Query) ([]ir.Task, error) {
	return s.find(ctx, q.storeQuery(0))
}

// Count returns the number of open tasks matching q.
func (s *Service) Count(ctx context.Context, q Query) (int, error) {
	tasks, err := s.List(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// SingleResult returns the only open task matching q.
// Fails with NotFound when none match and AmbiguousResult when several do.
func (s *Service) SingleResult(ctx context.Context, q Query) (ir.Task, error) {
	tasks, err := s.find(ctx, q.storeQuery(2))
	if err != nil {
		return ir.Task{}, err
	}
	switch len(tasks) {
	case 0:
		return ir.Task{}, ir.NotFound("task", q.describe())
	case 1:
		return tasks[0], nil
	default:
		return ir.Task{}, ir.AmbiguousResult("task", len(tasks))
	}
}

// Get returns a task by id, open or completed.
func (s *Service) Get(ctx context.Context, taskID string) (ir.Task, error) {
	var t ir.Task
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.Task(ctx, taskID)
		return err
	})
	return t, err
}

// Complete completes a task with vars and advances its instance.
func (s *Service) Complete(ctx context.Context, taskID string, vars ir.Object) error {
	return s.completer.CompleteTask(ctx, taskID, vars)
}

func (s *Service) find(ctx context.Context, q store.TaskQuery) ([]ir.Task, error) {
	var tasks []ir.Task
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		tasks, err = tx.FindTasks(ctx, q)
		return err
	})
	return tasks, err
}

// describe renders the criteria for NotFound messages.
func (q Query) describe() string {
	parts := []string{}
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("instance", q.ProcessInstanceID)
	add("name", q.Name)
	add("node", q.NodeID)
	add("assignee", q.Assignee)
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ",")
}
