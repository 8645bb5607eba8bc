package handlers

import (
	"context"
	"net/http"

	"casefile-backend/rules"
	"casefile-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SlotAssignments reads and edits card slot bindings
type SlotAssignments interface {
	ListTemplates(ctx context.Context, caseID uuid.UUID) ([]rules.CardSlotTemplate, error)
	GetSnapshot(ctx context.Context, caseID uuid.UUID, templateID string) (*service.SlotSnapshot, error)
	UpdateAssignment(ctx context.Context, req service.UpdateAssignmentRequest) (*service.SlotSnapshot, error)
	ResetSnapshot(ctx context.Context, caseID uuid.UUID, templateID string) (int64, error)
}

// SlotAssignmentHandler handles HTTP requests for card slot templates
type SlotAssignmentHandler struct {
	slots SlotAssignments
}

// NewSlotAssignmentHandler creates a new slot assignment handler
func NewSlotAssignmentHandler(slots SlotAssignments) *SlotAssignmentHandler {
	return &SlotAssignmentHandler{slots: slots}
}

// ListTemplates handles GET /api/evidence-card-templates?case_id=
func (h *SlotAssignmentHandler) ListTemplates(c *gin.Context) {
	caseID, ok := caseIDQuery(c)
	if !ok {
		return
	}
	templates, err := h.slots.ListTemplates(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err, "RETRIEVAL_FAILED")
		return
	}
	respondOK(c, http.StatusOK, templates)
}

// GetSnapshot handles GET /api/evidence-card-slot-assignments/:case_id/:template_id
func (h *SlotAssignmentHandler) GetSnapshot(c *gin.Context) {
	caseID, ok := uuidParam(c, "case_id")
	if !ok {
		return
	}
	snap, err := h.slots.GetSnapshot(c.Request.Context(), caseID, c.Param("template_id"))
	if err != nil {
		respondServiceError(c, err, "RETRIEVAL_FAILED")
		return
	}
	respondOK(c, http.StatusOK, snap)
}

// UpdateAssignmentRequest represents the request body for binding one slot.
// A null card_id unbinds the slot.
type UpdateAssignmentRequest struct {
	SlotID string  `json:"slot_id" binding:"required"`
	CardID *string `json:"card_id"`
}

// UpdateAssignment handles PUT /api/evidence-card-slot-assignments/:case_id/:template_id
func (h *SlotAssignmentHandler) UpdateAssignment(c *gin.Context) {
	caseID, ok := uuidParam(c, "case_id")
	if !ok {
		return
	}
	var req UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	serviceReq := service.UpdateAssignmentRequest{
		CaseID:     caseID,
		TemplateID: c.Param("template_id"),
		SlotID:     req.SlotID,
	}
	if req.CardID != nil && *req.CardID != "" {
		cardID, err := uuid.Parse(*req.CardID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_CARD_ID", "Invalid card_id format")
			return
		}
		serviceReq.CardID = &cardID
	}

	snap, err := h.slots.UpdateAssignment(c.Request.Context(), serviceReq)
	if err != nil {
		respondServiceError(c, err, "UPDATE_FAILED")
		return
	}
	respondOK(c, http.StatusOK, snap)
}

// ResetSnapshot handles POST /api/evidence-card-slot-assignments/:case_id/:template_id
func (h *SlotAssignmentHandler) ResetSnapshot(c *gin.Context) {
	caseID, ok := uuidParam(c, "case_id")
	if !ok {
		return
	}
	templateID := c.Param("template_id")
	n, err := h.slots.ResetSnapshot(c.Request.Context(), caseID, templateID)
	if err != nil {
		respondServiceError(c, err, "RESET_FAILED")
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"case_id":     caseID,
		"template_id": templateID,
		"removed":     n,
	})
}
