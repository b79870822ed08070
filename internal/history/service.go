package history

import (
	"context"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/store"
)

// Service answers history queries.
type Service struct {
	store store.Backend
}

// NewService creates a Service reading from b.
func NewService(b store.Backend) *Service {
	return &Service{store: b}
}

// QueryVariable returns the latest write of a variable.
func (s *Service) QueryVariable(ctx context.Context, instanceID, name string) (ir.HistoricVariableInstance, error) {
	writes, err := s.VariableHistory(ctx, instanceID, name)
	if err != nil {
		return ir.HistoricVariableInstance{}, err
	}
	if len(writes) == 0 {
		return ir.HistoricVariableInstance{}, ir.NotFound("historic variable", instanceID+"/"+name)
	}
	return writes[len(writes)-1], nil
}

// VariableHistory returns every write of a variable, oldest first.
func (s *Service) VariableHistory(ctx context.Context, instanceID, name string) ([]ir.HistoricVariableInstance, error) {
	return s.FindVariables(ctx, store.HistoricVariableQuery{ProcessInstanceID: instanceID, Name: name})
}

// FindVariables returns historic variable writes matching q, oldest first.
func (s *Service) FindVariables(ctx context.Context, q store.HistoricVariableQuery) ([]ir.HistoricVariableInstance, error) {
	var out []ir.HistoricVariableInstance
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.FindHistoricVariables(ctx, q)
		return err
	})
	return out, err
}

// QueryInstance returns the historic record of an instance, finished or not.
func (s *Service) QueryInstance(ctx context.Context, instanceID string) (ir.HistoricProcessInstance, error) {
	return s.single(ctx, store.HistoricInstanceQuery{ProcessInstanceID: instanceID})
}

// QueryFinishedInstance returns the historic record of an instance once it
// has an end time, and NotFound before that.
func (s *Service) QueryFinishedInstance(ctx context.Context, instanceID string) (ir.HistoricProcessInstance, error) {
	return s.single(ctx, store.HistoricInstanceQuery{ProcessInstanceID: instanceID, Finished: true})
}

// FindInstances returns historic process instances matching q, ordered by
// start time.
func (s *Service) FindInstances(ctx context.Context, q store.HistoricInstanceQuery) ([]ir.HistoricProcessInstance, error) {
	var out []ir.HistoricProcessInstance
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.FindHistoricInstances(ctx, q)
		return err
	})
	return out, err
}

// Events returns the audit trail of an instance in seq order.
func (s *Service) Events(ctx context.Context, instanceID string) ([]ir.HistoryEvent, error) {
	var out []ir.HistoryEvent
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.FindEvents(ctx, instanceID)
		return err
	})
	return out, err
}

func (s *Service) single(ctx context.Context, q store.HistoricInstanceQuery) (ir.HistoricProcessInstance, error) {
	found, err := s.FindInstances(ctx, q)
	if err != nil {
		return ir.HistoricProcessInstance{}, err
	}
	if len(found) == 0 {
		return ir.HistoricProcessInstance{}, ir.NotFound("historic process instance", q.ProcessInstanceID)
	}
	return found[0], nil
}
