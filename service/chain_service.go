package service

import (
	"context"
	"fmt"

	"casefile-backend/chain"
	"casefile-backend/models"

	"github.com/google/uuid"
)

// ChainService evaluates chain readiness of a case
type ChainService struct {
	rules        RuleSource
	cases        CaseStore
	evidences    EvidenceStore
	associations AssociationStore
}

// ChainServiceOption is a functional option for ChainService
type ChainServiceOption func(*ChainService)

// ChainWithRules sets the rule source
func ChainWithRules(src RuleSource) ChainServiceOption {
	return func(s *ChainService) {
		s.rules = src
	}
}

// ChainWithCaseStore sets the case store
func ChainWithCaseStore(store CaseStore) ChainServiceOption {
	return func(s *ChainService) {
		s.cases = store
	}
}

// ChainWithEvidenceStore sets the evidence store
func ChainWithEvidenceStore(store EvidenceStore) ChainServiceOption {
	return func(s *ChainService) {
		s.evidences = store
	}
}

// ChainWithAssociationStore sets the association group store
func ChainWithAssociationStore(store AssociationStore) ChainServiceOption {
	return func(s *ChainService) {
		s.associations = store
	}
}

// NewChainService creates a new chain service
func NewChainService(opts ...ChainServiceOption) *ChainService {
	s := &ChainService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dashboard evaluates every chain configured for the case. It reads a
// snapshot of the case and mutates nothing.
func (s *ChainService) Dashboard(ctx context.Context, caseID uuid.UUID) (*chain.Dashboard, error) {
	if s.rules == nil || s.cases == nil || s.evidences == nil {
		return nil, fmt.Errorf("%w: rules, case and evidence stores are required", ErrNotConfigured)
	}
	snap, err := s.rules.Current()
	if err != nil {
		return nil, err
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, lookupError(err, ErrCaseNotFound, "case")
	}

	evs, err := s.evidences.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidences: %w", err)
	}
	evidences := make([]models.Evidence, 0, len(evs))
	for _, ev := range evs {
		evidences = append(evidences, *ev)
	}

	var associations []models.AssociationFeature
	if s.associations != nil {
		groups, err := s.associations.ListByCase(ctx, caseID)
		if err != nil {
			return nil, fmt.Errorf("failed to load association groups: %w", err)
		}
		for _, g := range groups {
			associations = append(associations, *g)
		}
	}

	d := chain.Evaluate(snap, c, evidences, associations)
	return &d, nil
}
