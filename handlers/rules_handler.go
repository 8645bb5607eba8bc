package handlers

import (
	"net/http"

	"casefile-backend/logger"

	"github.com/gin-gonic/gin"
)

// RuleReloader rebuilds the rule snapshot from disk
type RuleReloader interface {
	ReloadAll() error
}

// RulesHandler handles rule administration requests
type RulesHandler struct {
	rules  RuleReloader
	logger *logger.Logger
}

// NewRulesHandler creates a new rules handler
func NewRulesHandler(rules RuleReloader, log *logger.Logger) *RulesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RulesHandler{rules: rules, logger: log}
}

// Reload handles POST /api/rules/reload. A failed reload keeps the
// previous snapshot in service.
func (h *RulesHandler) Reload(c *gin.Context) {
	if err := h.rules.ReloadAll(); err != nil {
		h.logger.Error("rule reload failed", "error", err)
		respondServiceError(c, err, "RELOAD_FAILED")
		return
	}
	h.logger.Info("rules reloaded")
	respondOK(c, http.StatusOK, gin.H{"reloaded": true})
}
