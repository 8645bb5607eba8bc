package handlers

import (
	"errors"
	"net/http"

	"casefile-backend/llm"
	"casefile-backend/rules"
	"casefile-backend/service"
	"casefile-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// errorStatus maps a service error to an HTTP status and error code.
// fallback is the code used for unclassified failures.
func errorStatus(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, service.ErrCaseNotFound):
		return http.StatusNotFound, "CASE_NOT_FOUND"
	case errors.Is(err, service.ErrEvidenceNotFound):
		return http.StatusNotFound, "EVIDENCE_NOT_FOUND"
	case errors.Is(err, service.ErrCardNotFound):
		return http.StatusNotFound, "CARD_NOT_FOUND"
	case errors.Is(err, service.ErrTemplateNotFound):
		return http.StatusNotFound, "TEMPLATE_NOT_FOUND"
	case errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound, "TASK_NOT_FOUND"
	case errors.Is(err, llm.ErrRemoteTimeout):
		return http.StatusGatewayTimeout, "LLM_TIMEOUT"
	case errors.Is(err, llm.ErrRemoteCall):
		return http.StatusBadGateway, "LLM_FAILED"
	case errors.Is(err, llm.ErrInvalidResponse):
		return http.StatusInternalServerError, "LLM_INVALID_RESPONSE"
	case errors.Is(err, rules.ErrConfigMissing), errors.Is(err, rules.ErrConfigInvalid), errors.Is(err, rules.ErrNotLoaded):
		return http.StatusInternalServerError, "CONFIG_INVALID"
	case errors.Is(err, storage.ErrUploadFailed):
		return http.StatusInternalServerError, "UPLOAD_FAILED"
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusInternalServerError, "NOT_CONFIGURED"
	}
	return http.StatusInternalServerError, fallback
}

func respondServiceError(c *gin.Context, err error, fallback string) {
	status, code := errorStatus(err, fallback)
	respondError(c, status, code, err.Error())
}

// uuidParam parses a path parameter, answering 400 when it is malformed
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// caseIDQuery parses the required case_id query parameter
func caseIDQuery(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Query("case_id")
	if raw == "" {
		respondError(c, http.StatusBadRequest, "MISSING_CASE_ID", "case_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CASE_ID", "Invalid case_id format")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
