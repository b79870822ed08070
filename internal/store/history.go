package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/querysql"
)

var historicVariableColumns = []string{"id", "instance_id", "task_id", "name", "value", "seq", "recorded_at"}

var historicInstanceColumns = []string{
	"id", "definition_id", "definition_key", "business_key",
	"start_node", "end_node", "started_at", "ended_at",
}

// InsertHistoricVariable implements Tx. Historic rows are append-only.
func (t *tx) InsertHistoricVariable(ctx context.Context, h ir.HistoricVariableInstance) error {
	encoded, err := marshalValue(h.Value)
	if err != nil {
		return fmt.Errorf("write historic variable: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO historic_variables (id, instance_id, task_id, name, value, seq, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		h.ID,
		h.ProcessInstanceID,
		h.TaskID,
		h.Name,
		encoded,
		h.Seq,
		toNanos(h.Time),
	)
	if err != nil {
		return fmt.Errorf("write historic variable: %w", err)
	}
	return nil
}

// FindHistoricVariables implements Tx. Results are ordered by seq, oldest first.
func (t *tx) FindHistoricVariables(ctx context.Context, q HistoricVariableQuery) ([]ir.HistoricVariableInstance, error) {
	rows, err := t.query(ctx, querysql.Select{
		From:    "historic_variables",
		Columns: historicVariableColumns,
		Filter: querysql.Where(
			querysql.EqualsIf("instance_id", q.ProcessInstanceID),
			querysql.EqualsIf("name", q.Name),
			querysql.EqualsIf("task_id", q.TaskID),
		),
		OrderBy: []string{"seq"},
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query historic variables: %w", err)
	}
	defer rows.Close()

	out := []ir.HistoricVariableInstance{}
	for rows.Next() {
		var (
			h          ir.HistoricVariableInstance
			encoded    string
			recordedAt int64
		)
		if err := rows.Scan(&h.ID, &h.ProcessInstanceID, &h.TaskID, &h.Name, &encoded, &h.Seq, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan historic variable: %w", err)
		}
		if h.Value, err = unmarshalValue(encoded); err != nil {
			return nil, fmt.Errorf("historic variable %s: %w", h.ID, err)
		}
		h.Time = fromNanos(recordedAt)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate historic variables: %w", err)
	}
	return out, nil
}

// InsertHistoricInstance implements Tx.
func (t *tx) InsertHistoricInstance(ctx context.Context, h ir.HistoricProcessInstance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO historic_instances
		(id, definition_id, definition_key, business_key, start_node, end_node, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		h.ProcessInstanceID,
		h.DefinitionID,
		h.DefinitionKey,
		h.BusinessKey,
		h.StartNode,
		h.EndNode,
		toNanos(h.StartedAt),
		toNullNanos(h.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("write historic instance: %w", err)
	}
	return nil
}

// UpdateHistoricInstance implements Tx. The end time is written only while
// it is still unset, so a finished record is never revised.
func (t *tx) UpdateHistoricInstance(ctx context.Context, h ir.HistoricProcessInstance) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE historic_instances SET end_node = $1, ended_at = $2
		WHERE id = $3 AND ended_at IS NULL
	`,
		h.EndNode,
		toNullNanos(h.EndedAt),
		h.ProcessInstanceID,
	)
	if err != nil {
		return fmt.Errorf("update historic instance: %w", err)
	}
	return requireRow(res, "historic instance", h.ProcessInstanceID)
}

// FindHistoricInstances implements Tx. Results are ordered by start time.
func (t *tx) FindHistoricInstances(ctx context.Context, q HistoricInstanceQuery) ([]ir.HistoricProcessInstance, error) {
	var finished querysql.Predicate
	switch {
	case q.Finished:
		finished = querysql.NotNull{Field: "ended_at"}
	case q.Unfinished:
		finished = querysql.IsNull{Field: "ended_at"}
	}

	rows, err := t.query(ctx, querysql.Select{
		From:    "historic_instances",
		Columns: historicInstanceColumns,
		Filter: querysql.Where(
			querysql.EqualsIf("id", q.ProcessInstanceID),
			querysql.EqualsIf("definition_key", q.DefinitionKey),
			finished,
		),
		OrderBy: []string{"started_at"},
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query historic instances: %w", err)
	}
	defer rows.Close()

	out := []ir.HistoricProcessInstance{}
	for rows.Next() {
		var (
			h         ir.HistoricProcessInstance
			startedAt int64
			endedAt   sql.NullInt64
		)
		err := rows.Scan(&h.ProcessInstanceID, &h.DefinitionID, &h.DefinitionKey, &h.BusinessKey,
			&h.StartNode, &h.EndNode, &startedAt, &endedAt)
		if err != nil {
			return nil, fmt.Errorf("scan historic instance: %w", err)
		}
		h.StartedAt = fromNanos(startedAt)
		h.EndedAt = fromNullNanos(endedAt)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate historic instances: %w", err)
	}
	return out, nil
}

// InsertEvent implements Tx.
func (t *tx) InsertEvent(ctx context.Context, e ir.HistoryEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO history_events (id, seq, recorded_at, instance_id, type, node_id, task_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		e.ID,
		e.Seq,
		toNanos(e.Time),
		e.ProcessInstanceID,
		string(e.Type),
		e.NodeID,
		e.TaskID,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("write history event: %w", err)
	}
	return nil
}

// FindEvents implements Tx. Events are returned in seq order.
func (t *tx) FindEvents(ctx context.Context, instanceID string) ([]ir.HistoryEvent, error) {
	rows, err := t.query(ctx, querysql.Select{
		From:    "history_events",
		Columns: []string{"id", "seq", "recorded_at", "instance_id", "type", "node_id", "task_id", "detail"},
		Filter:  querysql.Equals{Field: "instance_id", Value: instanceID},
		OrderBy: []string{"seq"},
	})
	if err != nil {
		return nil, fmt.Errorf("query history events: %w", err)
	}
	defer rows.Close()

	events := []ir.HistoryEvent{}
	for rows.Next() {
		var (
			e          ir.HistoryEvent
			recordedAt int64
			eventType  string
		)
		if err := rows.Scan(&e.ID, &e.Seq, &recordedAt, &e.ProcessInstanceID, &eventType, &e.NodeID, &e.TaskID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		e.Time = fromNanos(recordedAt)
		e.Type = ir.HistoryEventType(eventType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history events: %w", err)
	}
	return events, nil
}

// LastEvent implements Tx.
func (t *tx) LastEvent(ctx context.Context, instanceID string) (int64, time.Time, error) {
	var seq, recordedAt sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		SELECT MAX(seq), MAX(recorded_at) FROM history_events
		WHERE instance_id = $1
	`, instanceID).Scan(&seq, &recordedAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("query last event: %w", err)
	}
	if !recordedAt.Valid {
		return 0, time.Time{}, nil
	}
	return seq.Int64, fromNanos(recordedAt.Int64), nil
}
