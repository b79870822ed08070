package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/procflow/internal/compiler"
	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
)

// Deploy validates a definition and stores it as the next version of its
// key. Deploying a definition identical to the latest version of its key
// returns the stored definition instead of creating a new version.
//
// Fails with InvalidDefinition, whose details list every validation error.
func (e *Engine) Deploy(ctx context.Context, draft ir.ProcessDefinition) (ir.ProcessDefinition, error) {
	if errs := compiler.Validate(&draft); len(errs) > 0 {
		return ir.ProcessDefinition{}, ir.InvalidDefinition(draft.Key, compiler.Details(errs))
	}

	hash, err := ir.DefinitionHash(draft)
	if err != nil {
		return ir.ProcessDefinition{}, fmt.Errorf("hash definition %s: %w", draft.Key, err)
	}

	var (
		deployed ir.ProcessDefinition
		reused   bool
	)
	err = e.store.Update(ctx, func(tx store.Tx) error {
		version := 1
		latest, err := tx.LatestDefinition(ctx, draft.Key)
		switch {
		case err == nil && latest.Hash == hash:
			deployed, reused = latest, true
			return nil
		case err == nil:
			version = latest.Version + 1
		case !ir.IsNotFound(err):
			return err
		}

		deployed = ir.ProcessDefinition{
			ID:         fmt.Sprintf("%s:%d:%s", draft.Key, version, e.ids.Generate()),
			Key:        draft.Key,
			Version:    version,
			Name:       draft.Name,
			Hash:       hash,
			Nodes:      slices.Clone(draft.Nodes),
			Flows:      slices.Clone(draft.Flows),
			DeployedAt: e.now(),
		}
		return tx.InsertDefinition(ctx, deployed)
	})
	if err != nil {
		return ir.ProcessDefinition{}, err
	}

	if reused {
		e.logger.Info("definition unchanged", "key", deployed.Key, "id", deployed.ID, "version", deployed.Version)
	} else {
		e.logger.Info("definition deployed", "key", deployed.Key, "id", deployed.ID, "version", deployed.Version)
	}
	return deployed, nil
}

// Definition returns the latest version of key.
func (e *Engine) Definition(ctx context.Context, key string) (ir.ProcessDefinition, error) {
	var def ir.ProcessDefinition
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		def, err = tx.LatestDefinition(ctx, key)
		return err
	})
	return def, err
}

// DefinitionByID returns one specific definition version.
func (e *Engine) DefinitionByID(ctx context.Context, id string) (ir.ProcessDefinition, error) {
	var def ir.ProcessDefinition
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		def, err = tx.DefinitionByID(ctx, id)
		return err
	})
	return def, err
}

// Definitions lists every deployed version, ordered by key then version.
func (e *Engine) Definitions(ctx context.Context) ([]ir.ProcessDefinition, error) {
	var defs []ir.ProcessDefinition
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		defs, err = tx.ListDefinitions(ctx)
		return err
	})
	return defs, err
}
