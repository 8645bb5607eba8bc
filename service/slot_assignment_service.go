package service

import (
	"context"
	"fmt"

	"casefile-backend/models"
	"casefile-backend/rules"

	"github.com/google/uuid"
)

// SlotAssignmentService binds cards to the slots of card-slot templates
type SlotAssignmentService struct {
	rules       RuleSource
	cases       CaseStore
	cards       CardStore
	assignments SlotAssignmentStore
}

// SlotAssignmentServiceOption is a functional option for SlotAssignmentService
type SlotAssignmentServiceOption func(*SlotAssignmentService)

// SlotWithRules sets the rule source
func SlotWithRules(src RuleSource) SlotAssignmentServiceOption {
	return func(s *SlotAssignmentService) {
		s.rules = src
	}
}

// SlotWithCaseStore sets the case store
func SlotWithCaseStore(store CaseStore) SlotAssignmentServiceOption {
	return func(s *SlotAssignmentService) {
		s.cases = store
	}
}

// SlotWithCardStore sets the card store used to validate bindings
func SlotWithCardStore(store CardStore) SlotAssignmentServiceOption {
	return func(s *SlotAssignmentService) {
		s.cards = store
	}
}

// SlotWithAssignmentStore sets the assignment store
func SlotWithAssignmentStore(store SlotAssignmentStore) SlotAssignmentServiceOption {
	return func(s *SlotAssignmentService) {
		s.assignments = store
	}
}

// NewSlotAssignmentService creates a new slot assignment service
func NewSlotAssignmentService(opts ...SlotAssignmentServiceOption) *SlotAssignmentService {
	s := &SlotAssignmentService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SlotSnapshot maps every slot of a template to its bound card, nil when
// unbound. A bound id may point at a card deleted since.
type SlotSnapshot struct {
	CaseID      uuid.UUID             `json:"case_id"`
	TemplateID  string                `json:"template_id"`
	Assignments map[string]*uuid.UUID `json:"assignments"`
}

// ListTemplates returns the card-slot templates applicable to the case
func (s *SlotAssignmentService) ListTemplates(ctx context.Context, caseID uuid.UUID) ([]rules.CardSlotTemplate, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	snap, err := s.rules.Current()
	if err != nil {
		return nil, err
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, lookupError(err, ErrCaseNotFound, "case")
	}
	templates := snap.CardSlotTemplates(c)
	if templates == nil {
		templates = []rules.CardSlotTemplate{}
	}
	return templates, nil
}

// GetSnapshot returns the bindings of one template for a case
func (s *SlotAssignmentService) GetSnapshot(ctx context.Context, caseID uuid.UUID, templateID string) (*SlotSnapshot, error) {
	tpl, err := s.template(ctx, caseID, templateID)
	if err != nil {
		return nil, err
	}
	rows, err := s.assignments.ListByTemplate(ctx, caseID, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load slot assignments: %w", err)
	}

	out := &SlotSnapshot{CaseID: caseID, TemplateID: templateID, Assignments: make(map[string]*uuid.UUID)}
	for _, ct := range tpl.CardTypes {
		out.Assignments[ct.ID()] = nil
	}
	for _, row := range rows {
		// rows for slots removed from the template are not reported
		if _, ok := out.Assignments[row.SlotID]; ok {
			out.Assignments[row.SlotID] = row.CardID
		}
	}
	return out, nil
}

// UpdateAssignmentRequest binds (or, with a nil card id, unbinds) one slot
type UpdateAssignmentRequest struct {
	CaseID     uuid.UUID
	TemplateID string
	SlotID     string
	CardID     *uuid.UUID
}

// UpdateAssignment upserts one binding and returns the resulting snapshot
func (s *SlotAssignmentService) UpdateAssignment(ctx context.Context, req UpdateAssignmentRequest) (*SlotSnapshot, error) {
	tpl, err := s.template(ctx, req.CaseID, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.HasSlot(req.SlotID) {
		return nil, invalid("template %s has no slot %q", req.TemplateID, req.SlotID)
	}
	if req.CardID != nil && s.cards != nil {
		card, err := s.cards.GetByID(ctx, *req.CardID)
		if err != nil {
			return nil, lookupError(err, ErrCardNotFound, "card")
		}
		if card.CaseID != req.CaseID {
			return nil, ErrCardNotFound
		}
	}

	err = s.assignments.Upsert(ctx, &models.SlotAssignment{
		CaseID:     req.CaseID,
		TemplateID: req.TemplateID,
		SlotID:     req.SlotID,
		CardID:     req.CardID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save slot assignment: %w", err)
	}
	return s.GetSnapshot(ctx, req.CaseID, req.TemplateID)
}

// ResetSnapshot removes every binding of the template for the case
func (s *SlotAssignmentService) ResetSnapshot(ctx context.Context, caseID uuid.UUID, templateID string) (int64, error) {
	if _, err := s.template(ctx, caseID, templateID); err != nil {
		return 0, err
	}
	n, err := s.assignments.DeleteByTemplate(ctx, caseID, templateID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset slot assignments: %w", err)
	}
	return n, nil
}

// template resolves a template that is published for the case shape
func (s *SlotAssignmentService) template(ctx context.Context, caseID uuid.UUID, templateID string) (*rules.CardSlotTemplate, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.assignments == nil {
		return nil, fmt.Errorf("%w: slot assignment store", ErrNotConfigured)
	}
	snap, err := s.rules.Current()
	if err != nil {
		return nil, err
	}
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, lookupError(err, ErrCaseNotFound, "case")
	}
	tpl, ok := snap.CardSlotTemplateByID(templateID)
	if !ok || !tpl.AppliesTo(c.CauseOfAction, c.CreditorType, c.DebtorType) {
		return nil, ErrTemplateNotFound
	}
	return tpl, nil
}

func (s *SlotAssignmentService) check() error {
	if s.rules == nil || s.cases == nil {
		return fmt.Errorf("%w: rules and case store are required", ErrNotConfigured)
	}
	return nil
}
