package repository

import (
	"context"
	"fmt"

	"casefile-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssociationFeatureRepository handles database operations for association groups
type AssociationFeatureRepository struct {
	db *pgxpool.Pool
}

// NewAssociationFeatureRepository creates a new association feature repository
func NewAssociationFeatureRepository(db *pgxpool.Pool) *AssociationFeatureRepository {
	return &AssociationFeatureRepository{db: db}
}

// Upsert stores a group keyed by (case, group name), replacing its evidence and slots
func (r *AssociationFeatureRepository) Upsert(ctx context.Context, af *models.AssociationFeature) error {
	query := `
		INSERT INTO association_features (
			case_id, slot_group_name, evidence_type, association_evidence_ids, evidence_features
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (case_id, slot_group_name) DO UPDATE SET
			evidence_type = EXCLUDED.evidence_type,
			association_evidence_ids = EXCLUDED.association_evidence_ids,
			evidence_features = EXCLUDED.evidence_features,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		af.CaseID,
		af.GroupName,
		af.EvidenceType,
		af.AssociationEvidenceIDs,
		af.Features,
	).Scan(&af.ID, &af.CreatedAt, &af.UpdatedAt)
}

// ListByCase lists the association groups of a case
func (r *AssociationFeatureRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.AssociationFeature, error) {
	query := `
		SELECT id, case_id, slot_group_name, evidence_type, association_evidence_ids,
			evidence_features, created_at, updated_at
		FROM association_features
		WHERE case_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list association features: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AssociationFeature, 0)
	for rows.Next() {
		af := &models.AssociationFeature{}
		if err := rows.Scan(
			&af.ID,
			&af.CaseID,
			&af.GroupName,
			&af.EvidenceType,
			&af.AssociationEvidenceIDs,
			&af.Features,
			&af.CreatedAt,
			&af.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, af)
	}
	return out, rows.Err()
}
