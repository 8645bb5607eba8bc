package repository

import (
	"context"
	"fmt"

	"casefile-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SlotAssignmentRepository handles database operations for card-slot bindings
type SlotAssignmentRepository struct {
	db *pgxpool.Pool
}

// NewSlotAssignmentRepository creates a new slot assignment repository
func NewSlotAssignmentRepository(db *pgxpool.Pool) *SlotAssignmentRepository {
	return &SlotAssignmentRepository{db: db}
}

// ListByTemplate lists the bindings of one (case, template)
func (r *SlotAssignmentRepository) ListByTemplate(ctx context.Context, caseID uuid.UUID, templateID string) ([]*models.SlotAssignment, error) {
	query := `
		SELECT id, case_id, template_id, slot_id, card_id, created_at, updated_at
		FROM evidence_card_slot_assignments
		WHERE case_id = $1 AND template_id = $2
		ORDER BY slot_id`

	rows, err := r.db.Query(ctx, query, caseID, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slot assignments: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SlotAssignment, 0)
	for rows.Next() {
		a := &models.SlotAssignment{}
		if err := rows.Scan(&a.ID, &a.CaseID, &a.TemplateID, &a.SlotID, &a.CardID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert binds a card (or nothing) to a slot
func (r *SlotAssignmentRepository) Upsert(ctx context.Context, a *models.SlotAssignment) error {
	query := `
		INSERT INTO evidence_card_slot_assignments (case_id, template_id, slot_id, card_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id, template_id, slot_id) DO UPDATE SET
			card_id = EXCLUDED.card_id,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query, a.CaseID, a.TemplateID, a.SlotID, a.CardID).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// DeleteByTemplate removes every binding of one (case, template)
func (r *SlotAssignmentRepository) DeleteByTemplate(ctx context.Context, caseID uuid.UUID, templateID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM evidence_card_slot_assignments
		WHERE case_id = $1 AND template_id = $2`, caseID, templateID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset slot assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}
