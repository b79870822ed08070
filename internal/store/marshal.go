package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/procflow/internal/ir"
)

// marshalValue converts a Value to canonical JSON TEXT for storage.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses canonical JSON TEXT back into a Value.
func unmarshalValue(s string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// definitionBody is the stored shape of a definition's graph.
type definitionBody struct {
	Nodes []ir.FlowNode     `json:"nodes"`
	Flows []ir.SequenceFlow `json:"flows"`
}

func marshalBody(def ir.ProcessDefinition) (string, error) {
	body := definitionBody{Nodes: def.Nodes, Flows: def.Flows}
	if body.Nodes == nil {
		body.Nodes = []ir.FlowNode{}
	}
	if body.Flows == nil {
		body.Flows = []ir.SequenceFlow{}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal definition body: %w", err)
	}
	return string(data), nil
}

func unmarshalBody(s string, def *ir.ProcessDefinition) error {
	var body definitionBody
	if err := json.Unmarshal([]byte(s), &body); err != nil {
		return fmt.Errorf("unmarshal definition body: %w", err)
	}
	def.Nodes = body.Nodes
	def.Flows = body.Flows
	return nil
}

// Times are stored as unix nanoseconds and read back in UTC.

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
