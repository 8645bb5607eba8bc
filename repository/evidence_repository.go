package repository

import (
	"context"
	"fmt"

	"casefile-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const evidenceColumns = `id, case_id, file_url, file_name, file_size, file_extension,
	evidence_status, classification_category, classification_confidence,
	classification_reasoning, classified_at, evidence_role, evidence_features,
	features_extracted_at, created_at, updated_at`

// EvidenceRepository handles database operations for evidence artifacts
type EvidenceRepository struct {
	db *pgxpool.Pool
}

// NewEvidenceRepository creates a new evidence repository
func NewEvidenceRepository(db *pgxpool.Pool) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

func scanEvidence(row pgx.Row) (*models.Evidence, error) {
	ev := &models.Evidence{}
	err := row.Scan(
		&ev.ID,
		&ev.CaseID,
		&ev.FileURL,
		&ev.FileName,
		&ev.FileSize,
		&ev.FileExtension,
		&ev.Status,
		&ev.ClassificationCategory,
		&ev.ClassificationConfidence,
		&ev.ClassificationReasoning,
		&ev.ClassifiedAt,
		&ev.Role,
		&ev.Features,
		&ev.FeaturesExtractedAt,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ev.Features == nil {
		ev.Features = make(models.SlotRecords, 0)
	}
	return ev, nil
}

func collectEvidences(rows pgx.Rows) ([]*models.Evidence, error) {
	defer rows.Close()
	out := make([]*models.Evidence, 0)
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Create inserts a freshly uploaded artifact
func (r *EvidenceRepository) Create(ctx context.Context, ev *models.Evidence) error {
	if ev.Status == "" {
		ev.Status = models.EvidenceStatusUploaded
	}
	query := `
		INSERT INTO evidences (
			case_id, file_url, file_name, file_size, file_extension, evidence_status, evidence_features
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		ev.CaseID,
		ev.FileURL,
		ev.FileName,
		ev.FileSize,
		ev.FileExtension,
		ev.Status,
		ev.Features,
	).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
}

// GetByID retrieves an artifact by ID
func (r *EvidenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidences WHERE id = $1`
	ev, err := scanEvidence(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ev, nil
}

// GetByIDs retrieves the artifacts of a case in the order of ids; unknown ids are skipped
func (r *EvidenceRepository) GetByIDs(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.Evidence, error) {
	query := `
		SELECT ` + evidenceColumns + `
		FROM evidences
		WHERE case_id = $1 AND id = ANY($2)`

	rows, err := r.db.Query(ctx, query, caseID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidences: %w", err)
	}
	found, err := collectEvidences(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Evidence, len(found))
	for _, ev := range found {
		byID[ev.ID] = ev
	}
	out := make([]*models.Evidence, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if ev, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, ev)
		}
	}
	return out, nil
}

// ListByCase lists every artifact of a case, oldest first
func (r *EvidenceRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Evidence, error) {
	query := `
		SELECT ` + evidenceColumns + `
		FROM evidences
		WHERE case_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidences: %w", err)
	}
	return collectEvidences(rows)
}

// SaveAll writes the pipeline-owned fields of every artifact in one transaction
func (r *EvidenceRepository) SaveAll(ctx context.Context, evs []*models.Evidence) error {
	if len(evs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, ev := range evs {
			if err := saveEvidence(ctx, tx, ev); err != nil {
				return fmt.Errorf("failed to save evidence %s: %w", ev.ID, err)
			}
		}
		return nil
	})
}

func saveEvidence(ctx context.Context, q querier, ev *models.Evidence) error {
	query := `
		UPDATE evidences SET
			evidence_status = $2,
			classification_category = $3,
			classification_confidence = $4,
			classification_reasoning = $5,
			classified_at = $6,
			evidence_role = $7,
			evidence_features = $8,
			features_extracted_at = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := q.QueryRow(
		ctx, query,
		ev.ID,
		ev.Status,
		ev.ClassificationCategory,
		ev.ClassificationConfidence,
		ev.ClassificationReasoning,
		ev.ClassifiedAt,
		ev.Role,
		ev.Features,
		ev.FeaturesExtractedAt,
	).Scan(&ev.UpdatedAt)
	return notFound(err)
}

// Delete removes artifacts of a case and the association groups built from
// them, returning the removed rows so their files can be dropped from storage.
// Card rows keep their evidence_ids.
func (r *EvidenceRepository) Delete(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.Evidence, error) {
	var deleted []*models.Evidence
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			DELETE FROM evidences
			WHERE case_id = $1 AND id = ANY($2)
			RETURNING `+evidenceColumns, caseID, ids)
		if err != nil {
			return err
		}
		deleted, err = collectEvidences(rows)
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}

		removed := make([]uuid.UUID, 0, len(deleted))
		for _, ev := range deleted {
			removed = append(removed, ev.ID)
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM association_features
			WHERE case_id = $1 AND association_evidence_ids && $2`, caseID, removed)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete evidences: %w", err)
	}
	return deleted, nil
}

// ExistingIDs returns which of ids still exist
func (r *EvidenceRepository) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id FROM evidences WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
