package service

import (
	"context"
	"errors"
	"fmt"

	"casefile-backend/logger"
	"casefile-backend/models"
	"casefile-backend/storage"

	"github.com/google/uuid"
)

// EvidenceService handles listing and deletion of artifacts
type EvidenceService struct {
	evidences EvidenceStore
	files     FileStore
	logger    *logger.Logger
}

// EvidenceServiceOption is a functional option for EvidenceService
type EvidenceServiceOption func(*EvidenceService)

// WithEvidenceStore sets the evidence store
func WithEvidenceStore(store EvidenceStore) EvidenceServiceOption {
	return func(s *EvidenceService) {
		s.evidences = store
	}
}

// WithFileStore sets the object storage the artifacts live in
func WithFileStore(files FileStore) EvidenceServiceOption {
	return func(s *EvidenceService) {
		s.files = files
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) EvidenceServiceOption {
	return func(s *EvidenceService) {
		s.logger = l
	}
}

// NewEvidenceService creates a new evidence service
func NewEvidenceService(opts ...EvidenceServiceOption) *EvidenceService {
	s := &EvidenceService{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListEvidences returns the artifacts of a case
func (s *EvidenceService) ListEvidences(ctx context.Context, caseID uuid.UUID) ([]*models.Evidence, error) {
	if s.evidences == nil {
		return nil, fmt.Errorf("%w: evidence store", ErrNotConfigured)
	}
	return s.evidences.ListByCase(ctx, caseID)
}

// EvidenceFile is an artifact together with its stored bytes
type EvidenceFile struct {
	Evidence *models.Evidence
	Data     []byte
}

// GetEvidenceFile loads an artifact and the file behind it
func (s *EvidenceService) GetEvidenceFile(ctx context.Context, id uuid.UUID) (*EvidenceFile, error) {
	if s.evidences == nil || s.files == nil {
		return nil, fmt.Errorf("%w: evidence store and file storage are required", ErrNotConfigured)
	}
	ev, err := s.evidences.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, ErrEvidenceNotFound, "evidence")
	}
	data, err := s.files.Fetch(ctx, ev.FileURL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: stored file is gone", ErrEvidenceNotFound)
		}
		return nil, fmt.Errorf("failed to fetch evidence file: %w", err)
	}
	return &EvidenceFile{Evidence: ev, Data: data}, nil
}

// DeleteEvidence removes one artifact and its stored file
func (s *EvidenceService) DeleteEvidence(ctx context.Context, id uuid.UUID) error {
	if s.evidences == nil {
		return fmt.Errorf("%w: evidence store", ErrNotConfigured)
	}
	ev, err := s.evidences.GetByID(ctx, id)
	if err != nil {
		return lookupError(err, ErrEvidenceNotFound, "evidence")
	}
	deleted, err := s.evidences.Delete(ctx, ev.CaseID, []uuid.UUID{id})
	if err != nil {
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	if len(deleted) == 0 {
		return ErrEvidenceNotFound
	}
	s.removeFiles(ctx, deleted)
	return nil
}

// BatchDeleteRequest represents a request to delete several artifacts of a case
type BatchDeleteRequest struct {
	CaseID      uuid.UUID
	EvidenceIDs []uuid.UUID
}

// BatchDeleteResult lists what was actually removed
type BatchDeleteResult struct {
	DeletedIDs []uuid.UUID `json:"deleted_ids"`
}

// BatchDeleteEvidences removes the given artifacts. Ids that do not belong to
// the case are ignored. Cards keep their evidence ids and are flagged on read.
func (s *EvidenceService) BatchDeleteEvidences(ctx context.Context, req BatchDeleteRequest) (*BatchDeleteResult, error) {
	if s.evidences == nil {
		return nil, fmt.Errorf("%w: evidence store", ErrNotConfigured)
	}
	if len(req.EvidenceIDs) == 0 {
		return nil, invalid("evidence_ids must not be empty")
	}
	deleted, err := s.evidences.Delete(ctx, req.CaseID, req.EvidenceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete evidences: %w", err)
	}
	s.removeFiles(ctx, deleted)

	result := &BatchDeleteResult{DeletedIDs: make([]uuid.UUID, 0, len(deleted))}
	for _, ev := range deleted {
		result.DeletedIDs = append(result.DeletedIDs, ev.ID)
	}
	return result, nil
}

// removeFiles deletes stored objects after their rows are gone. Storage
// failures are logged only: the rows are the source of truth.
func (s *EvidenceService) removeFiles(ctx context.Context, deleted []*models.Evidence) {
	if s.files == nil || len(deleted) == 0 {
		return
	}
	keys := make([]string, 0, len(deleted))
	for _, ev := range deleted {
		if key, ok := s.files.KeyFromURL(ev.FileURL); ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	var err error
	if len(keys) == 1 {
		err = s.files.DeleteFile(ctx, keys[0])
	} else {
		err = s.files.BatchDelete(ctx, keys)
	}
	if err != nil {
		s.logger.Warn("failed to delete stored files", "keys", keys, "error", err)
	}
}
