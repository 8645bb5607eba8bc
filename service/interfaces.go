package service

import (
	"context"

	"casefile-backend/llm"
	"casefile-backend/models"
	"casefile-backend/ocr"
	"casefile-backend/repository"
	"casefile-backend/rules"
	"casefile-backend/storage"

	"github.com/google/uuid"
)

// The stores below are satisfied by the pgx repositories and by in-memory
// fakes in tests.

// CaseStore reads cases and writes back party fields
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
	UpdateParty(ctx context.Context, p *models.Party) error
}

// EvidenceStore persists artifacts
type EvidenceStore interface {
	Create(ctx context.Context, ev *models.Evidence) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Evidence, error)
	GetByIDs(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.Evidence, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Evidence, error)
	SaveAll(ctx context.Context, evs []*models.Evidence) error
	Delete(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.Evidence, error)
	ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// CardStore persists evidence cards
type CardStore interface {
	Create(ctx context.Context, card *models.EvidenceCard) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EvidenceCard, error)
	FindByEvidenceSet(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) ([]*models.EvidenceCard, error)
	Touch(ctx context.Context, card *models.EvidenceCard) error
	Update(ctx context.Context, card *models.EvidenceCard) error
	ListByCase(ctx context.Context, caseID uuid.UUID, filter repository.CardFilter) ([]*models.EvidenceCard, error)
}

// EvidenceSetLocker serialises minting per (case, evidence set) across processes
type EvidenceSetLocker interface {
	LockEvidenceSet(ctx context.Context, caseID uuid.UUID, ids []uuid.UUID) (func(), error)
}

// AssociationStore persists association groups
type AssociationStore interface {
	Upsert(ctx context.Context, af *models.AssociationFeature) error
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.AssociationFeature, error)
}

// SlotAssignmentStore persists card-slot bindings
type SlotAssignmentStore interface {
	ListByTemplate(ctx context.Context, caseID uuid.UUID, templateID string) ([]*models.SlotAssignment, error)
	Upsert(ctx context.Context, a *models.SlotAssignment) error
	DeleteByTemplate(ctx context.Context, caseID uuid.UUID, templateID string) (int64, error)
}

// CastingTaskStore persists background casting tasks
type CastingTaskStore interface {
	Create(ctx context.Context, task *models.CastingTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CastingTask, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CastingTaskStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, currentStep string, steps models.TaskSteps) error
	Complete(ctx context.Context, id uuid.UUID, cardIDs []uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// FileStore is the object storage the pipeline uploads to
type FileStore interface {
	UploadFile(ctx context.Context, data []byte, filename, folder string, disposition storage.Disposition) (string, error)
	DeleteFile(ctx context.Context, key string) error
	BatchDelete(ctx context.Context, keys []string) error
	KeyFromURL(fileURL string) (string, bool)
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// RuleSource serves the current rule snapshot
type RuleSource interface {
	Current() (*rules.Snapshot, error)
}

// Classifier assigns categories to images
type Classifier interface {
	Classify(ctx context.Context, snap *rules.Snapshot, urls []string) ([]llm.Classification, error)
}

// Extractor extracts configured slots from single images
type Extractor interface {
	Extract(ctx context.Context, snap *rules.Snapshot, targets []llm.ExtractionTarget) ([]llm.Extraction, error)
}

// Associator groups chat screenshots and extracts per group
type Associator interface {
	Extract(ctx context.Context, snap *rules.Snapshot, urls []string) ([]llm.AssociationGroup, error)
}

// OCR extracts fixed document types deterministically
type OCR interface {
	Supports(category string) bool
	Extract(ctx context.Context, fileURL, category string) ocr.Result
}
