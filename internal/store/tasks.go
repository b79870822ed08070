package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/querysql"
)

var taskColumns = []string{
	"id", "instance_id", "definition_id", "node_id", "name",
	"assignee", "status", "seq", "created_at", "completed_at",
}

// InsertTask implements Tx.
func (t *tx) InsertTask(ctx context.Context, task ir.Task) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tasks
		(id, instance_id, definition_id, node_id, name, assignee, status, seq, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		task.ID,
		task.ProcessInstanceID,
		task.DefinitionID,
		task.NodeID,
		task.Name,
		task.Assignee,
		string(task.Status),
		task.Seq,
		toNanos(task.CreatedAt),
		toNullNanos(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("write task: %w", err)
	}
	return nil
}

// Task implements Tx.
func (t *tx) Task(ctx context.Context, id string) (ir.Task, error) {
	row, err := t.row(ctx, querysql.Select{
		From:    "tasks",
		Columns: taskColumns,
		Filter:  querysql.Equals{Field: "id", Value: id},
	})
	if err != nil {
		return ir.Task{}, err
	}
	task, err := scanTask(row)
	if err != nil {
		return ir.Task{}, notFound(err, "task", id)
	}
	return task, nil
}

// UpdateTask implements Tx. Only status and completion time are mutable.
func (t *tx) UpdateTask(ctx context.Context, task ir.Task) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE tasks SET status = $1, completed_at = $2
		WHERE id = $3
	`,
		string(task.Status),
		toNullNanos(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, "task", task.ID)
}

// FindTasks implements Tx. Results are ordered by creation seq.
func (t *tx) FindTasks(ctx context.Context, q TaskQuery) ([]ir.Task, error) {
	rows, err := t.query(ctx, querysql.Select{
		From:    "tasks",
		Columns: taskColumns,
		Filter: querysql.Where(
			querysql.EqualsIf("id", q.ID),
			querysql.EqualsIf("instance_id", q.ProcessInstanceID),
			querysql.EqualsIf("name", q.Name),
			querysql.EqualsIf("node_id", q.NodeID),
			querysql.EqualsIf("assignee", q.Assignee),
			querysql.EqualsIf("status", string(q.Status)),
		),
		OrderBy: []string{"seq"},
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []ir.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(s scanner) (ir.Task, error) {
	var (
		task        ir.Task
		status      string
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := s.Scan(&task.ID, &task.ProcessInstanceID, &task.DefinitionID, &task.NodeID, &task.Name,
		&task.Assignee, &status, &task.Seq, &createdAt, &completedAt)
	if err != nil {
		return ir.Task{}, err
	}
	task.Status = ir.TaskStatus(status)
	task.CreatedAt = fromNanos(createdAt)
	task.CompletedAt = fromNullNanos(completedAt)
	return task, nil
}
