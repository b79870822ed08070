package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/querysql"
)

var instanceColumns = []string{
	"id", "definition_id", "definition_key", "business_key",
	"current_node", "status", "started_at", "ended_at",
}

// InsertInstance implements Tx.
func (t *tx) InsertInstance(ctx context.Context, inst ir.ProcessInstance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO instances
		(id, definition_id, definition_key, business_key, current_node, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		inst.ID,
		inst.DefinitionID,
		inst.DefinitionKey,
		inst.BusinessKey,
		inst.CurrentNode,
		string(inst.Status),
		toNanos(inst.StartedAt),
		toNullNanos(inst.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("write instance: %w", err)
	}
	return nil
}

// Instance implements Tx.
func (t *tx) Instance(ctx context.Context, id string) (ir.ProcessInstance, error) {
	return t.instance(ctx, id, false)
}

// LockInstance implements Tx.
func (t *tx) LockInstance(ctx context.Context, id string) (ir.ProcessInstance, error) {
	return t.instance(ctx, id, true)
}

func (t *tx) instance(ctx context.Context, id string, forUpdate bool) (ir.ProcessInstance, error) {
	row, err := t.row(ctx, querysql.Select{
		From:      "instances",
		Columns:   instanceColumns,
		Filter:    querysql.Equals{Field: "id", Value: id},
		ForUpdate: forUpdate,
	})
	if err != nil {
		return ir.ProcessInstance{}, err
	}
	inst, err := scanInstance(row)
	if err != nil {
		return ir.ProcessInstance{}, notFound(err, "instance", id)
	}
	return inst, nil
}

// UpdateInstance implements Tx. Only the mutable columns are written.
func (t *tx) UpdateInstance(ctx context.Context, inst ir.ProcessInstance) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE instances SET current_node = $1, status = $2, ended_at = $3
		WHERE id = $4
	`,
		inst.CurrentNode,
		string(inst.Status),
		toNullNanos(inst.EndedAt),
		inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	return requireRow(res, "instance", inst.ID)
}

// FindInstances implements Tx. Results are ordered by start time.
func (t *tx) FindInstances(ctx context.Context, q InstanceQuery) ([]ir.ProcessInstance, error) {
	rows, err := t.query(ctx, querysql.Select{
		From:    "instances",
		Columns: instanceColumns,
		Filter: querysql.Where(
			querysql.EqualsIf("id", q.ID),
			querysql.EqualsIf("definition_key", q.DefinitionKey),
			querysql.EqualsIf("business_key", q.BusinessKey),
			querysql.EqualsIf("current_node", q.CurrentNode),
			querysql.EqualsIf("status", string(q.Status)),
		),
		OrderBy: []string{"started_at"},
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	instances := []ir.ProcessInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return instances, nil
}

func scanInstance(s scanner) (ir.ProcessInstance, error) {
	var (
		inst      ir.ProcessInstance
		status    string
		startedAt int64
		endedAt   sql.NullInt64
	)
	err := s.Scan(&inst.ID, &inst.DefinitionID, &inst.DefinitionKey, &inst.BusinessKey,
		&inst.CurrentNode, &status, &startedAt, &endedAt)
	if err != nil {
		return ir.ProcessInstance{}, err
	}
	inst.Status = ir.InstanceStatus(status)
	inst.StartedAt = fromNanos(startedAt)
	inst.EndedAt = fromNullNanos(endedAt)
	return inst, nil
}

// requireRow turns a zero-row update into NotFound.
func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	if n == 0 {
		return ir.NotFound(entity, id)
	}
	return nil
}
