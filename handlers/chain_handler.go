package handlers

import (
	"context"
	"net/http"

	"casefile-backend/chain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChainEvaluator builds the chain readiness dashboard of a case
type ChainEvaluator interface {
	Dashboard(ctx context.Context, caseID uuid.UUID) (*chain.Dashboard, error)
}

// ChainHandler handles HTTP requests for evidence chains
type ChainHandler struct {
	chains ChainEvaluator
}

// NewChainHandler creates a new chain handler
func NewChainHandler(chains ChainEvaluator) *ChainHandler {
	return &ChainHandler{chains: chains}
}

// GetDashboard handles GET /api/evidence-chains/:case_id
func (h *ChainHandler) GetDashboard(c *gin.Context) {
	caseID, ok := uuidParam(c, "case_id")
	if !ok {
		return
	}
	dashboard, err := h.chains.Dashboard(c.Request.Context(), caseID)
	if err != nil {
		respondServiceError(c, err, "EVALUATION_FAILED")
		return
	}
	respondOK(c, http.StatusOK, dashboard)
}
