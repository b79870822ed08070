package store

import (
	"context"
	"fmt"

	"github.com/roach88/procflow/internal/ir"
)

// PutVariable implements Tx. It upserts the current value; history is
// recorded separately by InsertHistoricVariable.
func (t *tx) PutVariable(ctx context.Context, instanceID, name string, value ir.Value) error {
	encoded, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("write variable %q: %w", name, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO variables (instance_id, name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_id, name) DO UPDATE SET value = excluded.value
	`, instanceID, name, encoded)
	if err != nil {
		return fmt.Errorf("write variable %q: %w", name, err)
	}
	return nil
}

// Variables implements Tx. An instance without variables yields an empty Object.
func (t *tx) Variables(ctx context.Context, instanceID string) (ir.Object, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT name, value FROM variables
		WHERE instance_id = $1
		ORDER BY name ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query variables: %w", err)
	}
	defer rows.Close()

	vars := ir.Object{}
	for rows.Next() {
		var name, encoded string
		if err := rows.Scan(&name, &encoded); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		v, err := unmarshalValue(encoded)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		vars[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variables: %w", err)
	}
	return vars, nil
}
