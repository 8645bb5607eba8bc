package service

import (
	"context"
	"fmt"

	"casefile-backend/logger"
	"casefile-backend/models"

	"github.com/google/uuid"
)

// CastingTaskService runs card casting as a background task whose steps
// can be polled
type CastingTaskService struct {
	tasks  CastingTaskStore
	cases  CaseStore
	cards  *CardService
	logger *logger.Logger
}

// CastingTaskServiceOption is a functional option for CastingTaskService
type CastingTaskServiceOption func(*CastingTaskService)

// TaskWithStore sets the task store
func TaskWithStore(store CastingTaskStore) CastingTaskServiceOption {
	return func(s *CastingTaskService) {
		s.tasks = store
	}
}

// TaskWithCaseStore sets the case store used to validate requests
func TaskWithCaseStore(store CaseStore) CastingTaskServiceOption {
	return func(s *CastingTaskService) {
		s.cases = store
	}
}

// TaskWithCardService sets the card service doing the work
func TaskWithCardService(cards *CardService) CastingTaskServiceOption {
	return func(s *CastingTaskService) {
		s.cards = cards
	}
}

// TaskWithLogger sets the logger
func TaskWithLogger(l *logger.Logger) CastingTaskServiceOption {
	return func(s *CastingTaskService) {
		s.logger = l
	}
}

// NewCastingTaskService creates a new casting task service
func NewCastingTaskService(opts ...CastingTaskServiceOption) *CastingTaskService {
	s := &CastingTaskService{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCast validates the request and records a pending task. It returns
// quickly; the caller runs ProcessCast in the background.
func (s *CastingTaskService) StartCast(ctx context.Context, req CastRequest) (*models.CastingTask, error) {
	if s.tasks == nil || s.cards == nil {
		return nil, fmt.Errorf("%w: task store and card service are required", ErrNotConfigured)
	}
	if req.CaseID == uuid.Nil {
		return nil, invalid("case_id is required")
	}
	if len(req.EvidenceIDs) == 0 {
		return nil, invalid("evidence_ids must not be empty")
	}
	if s.cases != nil {
		if _, err := s.cases.GetByID(ctx, req.CaseID); err != nil {
			return nil, lookupError(err, ErrCaseNotFound, "case")
		}
	}

	task := &models.CastingTask{
		CaseID:      req.CaseID,
		EvidenceIDs: req.EvidenceIDs,
		Status:      models.TaskStatusPending,
		Steps:       initialSteps(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create casting task: %w", err)
	}
	return task, nil
}

func initialSteps() models.TaskSteps {
	return models.TaskSteps{
		{Name: models.StepClassify, Status: "pending", Description: "证据分类"},
		{Name: models.StepExtract, Status: "pending", Description: "特征提取"},
		{Name: models.StepMint, Status: "pending", Description: "生成证据卡片"},
	}
}

// ProcessCast performs the casting of a task created by StartCast
func (s *CastingTaskService) ProcessCast(ctx context.Context, taskID uuid.UUID, req CastRequest) error {
	if s.tasks == nil || s.cards == nil {
		return fmt.Errorf("%w: task store and card service are required", ErrNotConfigured)
	}
	log := s.logger.With("task_id", taskID, "case_id", req.CaseID)

	if err := s.tasks.UpdateStatus(ctx, taskID, models.TaskStatusInProgress); err != nil {
		return fmt.Errorf("failed to start casting task: %w", err)
	}

	var current string
	req.OnStep = func(step, status string) {
		if err := s.updateStepStatus(ctx, taskID, step, status); err != nil {
			log.Warn("failed to update casting step", "step", step, "error", err)
		}
		current = step
	}

	cards, err := s.cards.Cast(ctx, req)
	if err != nil {
		if current != "" {
			_ = s.updateStepStatus(ctx, taskID, current, "failed")
		}
		s.markTaskFailed(ctx, log, taskID, err.Error())
		return err
	}

	ids := make([]uuid.UUID, 0, len(cards))
	for _, card := range cards {
		ids = append(ids, card.ID)
	}
	if err := s.tasks.Complete(ctx, taskID, ids); err != nil {
		s.markTaskFailed(ctx, log, taskID, "failed to store casting result: "+err.Error())
		return err
	}
	log.Info("casting task completed", "cards", len(ids))
	return nil
}

// GetTask returns a casting task
func (s *CastingTaskService) GetTask(ctx context.Context, id uuid.UUID) (*models.CastingTask, error) {
	if s.tasks == nil {
		return nil, fmt.Errorf("%w: task store", ErrNotConfigured)
	}
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrTaskNotFound, "casting task")
	}
	return task, nil
}

// updateStepStatus updates the status of a specific step of a task
func (s *CastingTaskService) updateStepStatus(ctx context.Context, taskID uuid.UUID, stepName, status string) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	steps := task.Steps
	var currentStep string
	if task.CurrentStep != nil {
		currentStep = *task.CurrentStep
	}
	for i := range steps {
		if steps[i].Name == stepName {
			steps[i].Status = status
			if status == stepInProgress {
				currentStep = stepName
			}
			break
		}
	}
	return s.tasks.UpdateProgress(ctx, taskID, currentStep, steps)
}

func (s *CastingTaskService) markTaskFailed(ctx context.Context, log *logger.Logger, taskID uuid.UUID, msg string) {
	if err := s.tasks.Fail(ctx, taskID, msg); err != nil {
		log.Error("failed to mark casting task failed", "error", err)
	}
}
