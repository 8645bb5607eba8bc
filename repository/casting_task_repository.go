package repository

import (
	"context"
	"time"

	"casefile-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CastingTaskRepository handles database operations for card casting tasks
type CastingTaskRepository struct {
	db *pgxpool.Pool
}

// NewCastingTaskRepository creates a new casting task repository
func NewCastingTaskRepository(db *pgxpool.Pool) *CastingTaskRepository {
	return &CastingTaskRepository{db: db}
}

// Create creates a new casting task
func (r *CastingTaskRepository) Create(ctx context.Context, task *models.CastingTask) error {
	query := `
		INSERT INTO casting_tasks (
			id, case_id, evidence_ids, status, current_step, steps, card_ids, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CardIDs == nil {
		task.CardIDs = make([]uuid.UUID, 0)
	}

	return r.db.QueryRow(
		ctx, query,
		task.ID,
		task.CaseID,
		task.EvidenceIDs,
		task.Status,
		task.CurrentStep,
		task.Steps,
		task.CardIDs,
		task.ErrorMessage,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

// GetByID retrieves a casting task by ID
func (r *CastingTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CastingTask, error) {
	task := &models.CastingTask{}
	query := `
		SELECT id, case_id, evidence_ids, status, current_step, steps, card_ids,
			error_message, created_at, updated_at, completed_at
		FROM casting_tasks
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.CaseID,
		&task.EvidenceIDs,
		&task.Status,
		&task.CurrentStep,
		&task.Steps,
		&task.CardIDs,
		&task.ErrorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if task.Steps == nil {
		task.Steps = make(models.TaskSteps, 0)
	}
	if task.CardIDs == nil {
		task.CardIDs = make([]uuid.UUID, 0)
	}
	return task, nil
}

// UpdateStatus updates the status of a casting task
func (r *CastingTaskRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CastingTaskStatus) error {
	query := `
		UPDATE casting_tasks SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, status)
	return err
}

// UpdateProgress updates the step list of a casting task
func (r *CastingTaskRepository) UpdateProgress(ctx context.Context, id uuid.UUID, currentStep string, steps models.TaskSteps) error {
	query := `
		UPDATE casting_tasks SET
			current_step = $2,
			steps = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, currentStep, steps)
	return err
}

// Complete marks a casting task as completed with the cards it produced
func (r *CastingTaskRepository) Complete(ctx context.Context, id uuid.UUID, cardIDs []uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE casting_tasks SET
			status = $2,
			card_ids = $3,
			completed_at = $4,
			updated_at = $4
		WHERE id = $1`

	if cardIDs == nil {
		cardIDs = make([]uuid.UUID, 0)
	}
	_, err := r.db.Exec(ctx, query, id, models.TaskStatusCompleted, cardIDs, now)
	return err
}

// Fail marks a casting task as failed
func (r *CastingTaskRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE casting_tasks SET
			status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.TaskStatusFailed, errorMessage)
	return err
}
