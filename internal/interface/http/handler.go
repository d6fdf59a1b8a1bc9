package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/support-copilot/internal/domain/matcher"
	apperrors "github.com/yanqian/support-copilot/pkg/errors"
)

const (
	invalidQueryMessage  = "Query parameter is required and must be a string"
	analyzeFailedMessage = "Failed to analyze question"
)

// ModelStatus reports whether the embedding model is already loaded.
type ModelStatus interface {
	Ready() bool
}

// Handler wires the HTTP transport to domain services.
type Handler struct {
	matcherSvc matcher.Service
	model      ModelStatus
	logger     *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(matcherSvc matcher.Service, model ModelStatus, logger *slog.Logger) *Handler {
	return &Handler{
		matcherSvc: matcherSvc,
		model:      model,
		logger:     logger.With("component", "http.handler"),
	}
}

// AnalyzeQuestion ranks stored support questions against the submitted query.
func (h *Handler) AnalyzeQuestion(c *gin.Context) {
	var req matcher.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, matcher.CodeInvalidQuery, invalidQueryMessage, err))
		return
	}

	result, err := h.matcherSvc.AnalyzeQuestion(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, analyzeError(err))
		return
	}

	c.JSON(http.StatusOK, result)
}

// Healthz reports liveness plus whether the embedding model is warm.
func (h *Handler) Healthz(c *gin.Context) {
	loaded := h.model != nil && h.model.Ready()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "embeddingModelLoaded": loaded})
}

func analyzeError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	switch code {
	case matcher.CodeInvalidQuery:
		return NewHTTPError(http.StatusBadRequest, code, invalidQueryMessage, err)
	case matcher.CodeModelUnavailable:
		return NewHTTPError(http.StatusServiceUnavailable, code, analyzeFailedMessage, err).WithDetails(errMessage(err))
	case matcher.CodeDimensionMismatch, matcher.CodeRecordStore:
		return NewHTTPError(http.StatusInternalServerError, code, analyzeFailedMessage, err).WithDetails(errMessage(err))
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal_error", analyzeFailedMessage, err).WithDetails(errMessage(err))
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
