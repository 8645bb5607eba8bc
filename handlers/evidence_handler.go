package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"casefile-backend/logger"
	"casefile-backend/models"
	"casefile-backend/service"
	"casefile-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IntakeProcessor runs the intake pipeline
type IntakeProcessor interface {
	Intake(ctx context.Context, req service.IntakeRequest) (*service.IntakeResult, error)
	ClassifyOnly(ctx context.Context, req service.ClassifyOnlyRequest) (*service.IntakeResult, error)
}

// EvidenceManager lists, serves and deletes artifacts
type EvidenceManager interface {
	ListEvidences(ctx context.Context, caseID uuid.UUID) ([]*models.Evidence, error)
	GetEvidenceFile(ctx context.Context, id uuid.UUID) (*service.EvidenceFile, error)
	DeleteEvidence(ctx context.Context, id uuid.UUID) error
	BatchDeleteEvidences(ctx context.Context, req service.BatchDeleteRequest) (*service.BatchDeleteResult, error)
}

// EvidenceHandler handles HTTP requests for evidence artifacts
type EvidenceHandler struct {
	intake      IntakeProcessor
	evidences   EvidenceManager
	logger      *logger.Logger
	maxFileSize int64
}

// NewEvidenceHandler creates a new evidence handler
func NewEvidenceHandler(intake IntakeProcessor, evidences EvidenceManager, log *logger.Logger) *EvidenceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EvidenceHandler{
		intake:      intake,
		evidences:   evidences,
		logger:      log,
		maxFileSize: 20 * 1024 * 1024, // 20MB
	}
}

// AutoProcess handles POST /api/evidences/auto-process
func (h *EvidenceHandler) AutoProcess(c *gin.Context) {
	caseID, err := uuid.Parse(c.PostForm("case_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CASE_ID", "Invalid case_id format")
		return
	}

	classify, err := formBool(c, "auto_classification", true)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	extract, err := formBool(c, "auto_feature_extraction", true)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	ids, err := parseUUIDs(formList(c, "evidence_ids"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_EVIDENCE_ID", "Invalid evidence_ids format")
		return
	}

	uploads, err := h.readUploads(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FILE", err.Error())
		return
	}

	result, err := h.intake.Intake(c.Request.Context(), service.IntakeRequest{
		CaseID:      caseID,
		Files:       uploads,
		EvidenceIDs: ids,
		Classify:    classify,
		Extract:     extract,
	})
	if err != nil {
		h.logger.Error("auto-process failed", "case_id", caseID, "error", err)
		respondServiceError(c, err, "AUTO_PROCESS_FAILED")
		return
	}

	respondOK(c, http.StatusOK, result)
}

// readUploads reads every multipart file sent as files or files[]
func (h *EvidenceHandler) readUploads(c *gin.Context) ([]service.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if err == http.ErrNotMultipart {
			return nil, nil
		}
		return nil, err
	}

	var uploads []service.Upload
	for _, field := range []string{"files", "files[]"} {
		for _, fh := range form.File[field] {
			if fh.Size > h.maxFileSize {
				return nil, fmt.Errorf("file %s exceeds maximum of %d bytes", fh.Filename, h.maxFileSize)
			}
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, service.Upload{Name: fh.Filename, Data: data})
		}
	}
	return uploads, nil
}

// ClassifyRequest represents the request body for classify-only
type ClassifyRequest struct {
	CaseID string   `json:"case_id" binding:"required"`
	URLs   []string `json:"urls" binding:"required,min=1"`
}

// Classify handles POST /api/evidences/classify
func (h *EvidenceHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CASE_ID", "Invalid case_id format")
		return
	}

	result, err := h.intake.ClassifyOnly(c.Request.Context(), service.ClassifyOnlyRequest{CaseID: caseID, URLs: req.URLs})
	if err != nil {
		respondServiceError(c, err, "CLASSIFY_FAILED")
		return
	}
	respondOK(c, http.StatusOK, result.Evidences)
}

// ListEvidences handles GET /api/evidences?case_id=
func (h *EvidenceHandler) ListEvidences(c *gin.Context) {
	caseID, ok := caseIDQuery(c)
	if !ok {
		return
	}
	evs, err := h.evidences.ListEvidences(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err, "RETRIEVAL_FAILED")
		return
	}
	if evs == nil {
		evs = []*models.Evidence{}
	}
	respondOK(c, http.StatusOK, evs)
}

// GetEvidenceFile handles GET /api/evidences/:id/file. ?download=1 asks
// for an attachment instead of inline display.
func (h *EvidenceHandler) GetEvidenceFile(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	file, err := h.evidences.GetEvidenceFile(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "DOWNLOAD_FAILED")
		return
	}

	disposition := storage.DispositionInline
	if download, _ := strconv.ParseBool(c.Query("download")); download {
		disposition = storage.DispositionAttachment
	}
	c.Header("Content-Disposition", storage.ContentDisposition(disposition, file.Evidence.FileName))
	c.Data(http.StatusOK, storage.ContentType(file.Evidence.FileName), file.Data)
}

// DeleteEvidence handles DELETE /api/evidences/:id
func (h *EvidenceHandler) DeleteEvidence(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.evidences.DeleteEvidence(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "DELETE_FAILED")
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}

// BatchDeleteRequest represents the request body for batch deletion
type BatchDeleteRequest struct {
	CaseID      string   `json:"case_id" binding:"required"`
	EvidenceIDs []string `json:"evidence_ids" binding:"required,min=1"`
}

// BatchDelete handles POST /api/evidences/batch-delete
func (h *EvidenceHandler) BatchDelete(c *gin.Context) {
	var req BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CASE_ID", "Invalid case_id format")
		return
	}
	ids, err := parseUUIDs(req.EvidenceIDs)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_EVIDENCE_ID", "Invalid evidence_ids format")
		return
	}

	result, err := h.evidences.BatchDeleteEvidences(c.Request.Context(), service.BatchDeleteRequest{CaseID: caseID, EvidenceIDs: ids})
	if err != nil {
		respondServiceError(c, err, "DELETE_FAILED")
		return
	}
	respondOK(c, http.StatusOK, result)
}

// formList collects a repeated form field, accepting both "name" and
// "name[]" as well as comma-separated values
func formList(c *gin.Context, name string) []string {
	var out []string
	for _, key := range []string{name, name + "[]"} {
		for _, v := range c.PostFormArray(key) {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

func formBool(c *gin.Context, name string, def bool) (bool, error) {
	raw, ok := c.GetPostForm(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return v, nil
}
