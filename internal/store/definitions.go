package store

import (
	"context"
	"fmt"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/querysql"
)

var definitionColumns = []string{"id", "def_key", "version", "name", "hash", "body", "deployed_at"}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// InsertDefinition implements Tx. (key, version) is unique, so two
// concurrent deploys of the same key cannot both claim a version.
func (t *tx) InsertDefinition(ctx context.Context, def ir.ProcessDefinition) error {
	body, err := marshalBody(def)
	if err != nil {
		return fmt.Errorf("write definition: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO definitions (id, def_key, version, name, hash, body, deployed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		def.ID,
		def.Key,
		def.Version,
		def.Name,
		def.Hash,
		body,
		toNanos(def.DeployedAt),
	)
	if err != nil {
		return fmt.Errorf("write definition: %w", err)
	}
	return nil
}

// LatestDefinition implements Tx.
func (t *tx) LatestDefinition(ctx context.Context, key string) (ir.ProcessDefinition, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, def_key, version, name, hash, body, deployed_at
		FROM definitions
		WHERE def_key = $1
		ORDER BY version DESC
		LIMIT 1
	`, key)
	def, err := scanDefinition(row)
	if err != nil {
		return ir.ProcessDefinition{}, notFound(err, "definition", key)
	}
	return def, nil
}

// DefinitionByID implements Tx.
func (t *tx) DefinitionByID(ctx context.Context, id string) (ir.ProcessDefinition, error) {
	row, err := t.row(ctx, querysql.Select{
		From:    "definitions",
		Columns: definitionColumns,
		Filter:  querysql.Equals{Field: "id", Value: id},
	})
	if err != nil {
		return ir.ProcessDefinition{}, err
	}
	def, err := scanDefinition(row)
	if err != nil {
		return ir.ProcessDefinition{}, notFound(err, "definition", id)
	}
	return def, nil
}

// ListDefinitions implements Tx. Results are ordered by key, then version.
func (t *tx) ListDefinitions(ctx context.Context) ([]ir.ProcessDefinition, error) {
	rows, err := t.query(ctx, querysql.Select{
		From:    "definitions",
		Columns: definitionColumns,
		OrderBy: []string{"def_key", "version"},
	})
	if err != nil {
		return nil, fmt.Errorf("query definitions: %w", err)
	}
	defer rows.Close()

	defs := []ir.ProcessDefinition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return defs, nil
}

func scanDefinition(s scanner) (ir.ProcessDefinition, error) {
	var (
		def        ir.ProcessDefinition
		body       string
		deployedAt int64
	)
	if err := s.Scan(&def.ID, &def.Key, &def.Version, &def.Name, &def.Hash, &body, &deployedAt); err != nil {
		return ir.ProcessDefinition{}, err
	}
	if err := unmarshalBody(body, &def); err != nil {
		return ir.ProcessDefinition{}, err
	}
	def.DeployedAt = fromNanos(deployedAt)
	return def, nil
}
