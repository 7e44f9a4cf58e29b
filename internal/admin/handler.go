// internal/admin/handler.go
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"
	"funding-match-workers/internal/common/validation"
	"funding-match-workers/internal/matching"

	"github.com/gin-gonic/gin"
)

// Handler serves the admin endpoints.
type Handler struct {
	service     *WeightsService
	checks      map[string]Pinger
	serviceName string
	logger      logger.Logger
}

func NewHandler(service *WeightsService, checks map[string]Pinger, serviceName string, log logger.Logger) *Handler {
	return &Handler{
		service:     service,
		checks:      checks,
		serviceName: serviceName,
		logger:      log.WithFields(map[string]interface{}{"component": "admin"}),
	}
}

// Health is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// Ready pings every dependency and fails if any of them is down.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// GetWeights returns the weights in effect next to the compiled-in defaults.
func (h *Handler) GetWeights(c *gin.Context) {
	current := h.service.Current(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"weights":  current.ToMap(),
		"defaults": matching.DefaultWeights().ToMap(),
		"total":    current.Sum(),
	})
}

type putWeightsRequest struct {
	Weights   map[string]float64 `json:"weights"`
	UpdatedBy string             `json:"updatedBy"`
}

// PutWeights merges the posted overrides into the stored weights.
func (h *Handler) PutWeights(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.writeError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	result, err := validation.WeightsInput.ValidateJSON(body)
	if err != nil {
		h.writeError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if !result.Valid {
		h.writeError(c, apperrors.NewInvalidWeightsError(result.Error()))
		return
	}

	var req putWeightsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	source := "admin-api"
	if req.UpdatedBy != "" {
		source = "admin-api:" + req.UpdatedBy
	}

	saved, err := h.service.Save(c.Request.Context(), req.Weights, source)
	if err != nil {
		var partial *matching.PartialPersistenceError
		if errors.As(err, &partial) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(apperrors.ErrCodePartialPersistence),
				"message": partial.Error(),
				"written": partial.Written,
				"failed":  partial.Failed,
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// ClearCache forces every process to reload weights on next use.
func (h *Handler) ClearCache(c *gin.Context) {
	h.service.ClearCache(c.Request.Context(), "admin-api")
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	stdErr := apperrors.Normalize(err)
	status := http.StatusInternalServerError
	switch {
	case stdErr.Code == apperrors.ErrCodeInvalidInput, stdErr.Code == apperrors.ErrCodeInvalidWeights:
		status = http.StatusBadRequest
	case apperrors.IsRetryableErrorCode(stdErr.Code):
		status = http.StatusServiceUnavailable
		c.Header("Retry-After", "5")
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("admin request failed", map[string]interface{}{"error": err})
	}
	c.JSON(status, gin.H{
		"error":   string(stdErr.Code),
		"message": stdErr.Message,
		"details": stdErr.Details,
	})
}
