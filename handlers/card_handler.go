package handlers

import (
	"context"
	"net/http"
	"strconv"

	"casefile-backend/logger"
	"casefile-backend/models"
	"casefile-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CardCaster lists and rebinds evidence cards
type CardCaster interface {
	List(ctx context.Context, req service.ListCardsRequest) ([]*models.EvidenceCard, error)
	Rebind(ctx context.Context, req service.RebindRequest) (*models.EvidenceCard, error)
}

// CastingTasks runs casting as a background task
type CastingTasks interface {
	StartCast(ctx context.Context, req service.CastRequest) (*models.CastingTask, error)
	ProcessCast(ctx context.Context, taskID uuid.UUID, req service.CastRequest) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.CastingTask, error)
}

// CardHandler handles HTTP requests for evidence cards
type CardHandler struct {
	cards  CardCaster
	tasks  CastingTasks
	logger *logger.Logger
}

// NewCardHandler creates a new card handler
func NewCardHandler(cards CardCaster, tasks CastingTasks, log *logger.Logger) *CardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CardHandler{cards: cards, tasks: tasks, logger: log}
}

// CastRequest represents the request body for casting cards
type CastRequest struct {
	CaseID             string   `json:"case_id" binding:"required"`
	EvidenceIDs        []string `json:"evidence_ids" binding:"required,min=1"`
	CardID             *string  `json:"card_id"`
	SkipClassification bool     `json:"skip_classification"`
	TargetCardType     string   `json:"target_card_type"`
}

// Cast handles POST /api/evidence-cards/cast
func (h *CardHandler) Cast(c *gin.Context) {
	var req CastRequest
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
	castReq := service.CastRequest{
		CaseID:             caseID,
		EvidenceIDs:        ids,
		SkipClassification: req.SkipClassification,
		TargetCardType:     req.TargetCardType,
	}
	if req.CardID != nil && *req.CardID != "" {
		cardID, err := uuid.Parse(*req.CardID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_CARD_ID", "Invalid card_id format")
			return
		}
		castReq.CardID = &cardID
	}

	// Create task (synchronous, fast)
	task, err := h.tasks.StartCast(c.Request.Context(), castReq)
	if err != nil {
		respondServiceError(c, err, "CAST_FAILED")
		return
	}

	// The request context ends with the response, casting outlives it
	go func() {
		bgCtx := context.Background()
		if err := h.tasks.ProcessCast(bgCtx, task.ID, castReq); err != nil {
			h.logger.Error("casting task failed", "task_id", task.ID, "error", err)
		}
	}()

	respondOK(c, http.StatusAccepted, gin.H{
		"task_id": task.ID,
		"status":  "started",
		"message": "Casting task created. Poll /api/evidence-cards/tasks/:id for updates.",
	})
}

// GetTask handles GET /api/evidence-cards/tasks/:id
func (h *CardHandler) GetTask(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	task, err := h.tasks.GetTask(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "RETRIEVAL_FAILED")
		return
	}
	respondOK(c, http.StatusOK, task)
}

// ListCards handles GET /api/evidence-cards?case_id=&card_type=&card_is_associated=&sort_by=
func (h *CardHandler) ListCards(c *gin.Context) {
	caseID, ok := caseIDQuery(c)
	if !ok {
		return
	}
	req := service.ListCardsRequest{
		CaseID:   caseID,
		CardType: c.Query("card_type"),
		SortBy:   c.Query("sort_by"),
	}
	if raw := c.Query("card_is_associated"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "card_is_associated must be a boolean")
			return
		}
		req.IsAssociated = &v
	}

	cards, err := h.cards.List(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err, "RETRIEVAL_FAILED")
		return
	}
	if cards == nil {
		cards = []*models.EvidenceCard{}
	}
	respondOK(c, http.StatusOK, cards)
}

// RebindRequest represents the request body for rebinding a card
type RebindRequest struct {
	EvidenceIDs []string `json:"evidence_ids" binding:"required,min=1"`
	CardType    string   `json:"card_type"`
}

// Rebind handles POST /api/evidence-cards/:id/rebind
func (h *CardHandler) Rebind(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req RebindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	ids, err := parseUUIDs(req.EvidenceIDs)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_EVIDENCE_ID", "Invalid evidence_ids format")
		return
	}

	card, err := h.cards.Rebind(c.Request.Context(), service.RebindRequest{
		CardID:      id,
		EvidenceIDs: ids,
		CardType:    req.CardType,
	})
	if err != nil {
		h.logger.Warn("rebind failed", "card_id", id, "error", err)
		respondServiceError(c, err, "REBIND_FAILED")
		return
	}
	respondOK(c, http.StatusOK, card)
}
