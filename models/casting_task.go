package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CastingTaskStatus represents the status of a card casting task
type CastingTaskStatus string

const (
	TaskStatusPending    CastingTaskStatus = "pending"
	TaskStatusInProgress CastingTaskStatus = "in_progress"
	TaskStatusCompleted  CastingTaskStatus = "completed"
	TaskStatusFailed     CastingTaskStatus = "failed"
)

// Casting step names
const (
	StepClassify = "classify"
	StepExtract  = "extract"
	StepMint     = "mint"
)

// TaskStep represents a step in the casting process
type TaskStep struct {
	Name        string `json:"name"`
	Status      string `json:"status"` // "pending", "in_progress", "completed", "failed"
	Description string `json:"description,omitempty"`
}

// TaskSteps represents a list of casting steps
type TaskSteps []TaskStep

// Value implements driver.Valuer for JSONB
func (s TaskSteps) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *TaskSteps) Scan(value interface{}) error {
	*s = make(TaskSteps, 0)
	return scanJSON(value, s)
}

// CastingTask represents a background card-casting job
type CastingTask struct {
	ID           uuid.UUID         `json:"id"`
	CaseID       uuid.UUID         `json:"case_id"`
	EvidenceIDs  []uuid.UUID       `json:"evidence_ids"`
	Status       CastingTaskStatus `json:"status"`
	CurrentStep  *string           `json:"current_step,omitempty"`
	Steps        TaskSteps         `json:"steps"`
	CardIDs      []uuid.UUID       `json:"card_ids"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}
