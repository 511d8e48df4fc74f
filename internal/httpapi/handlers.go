package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"call-automation/internal/audit"
	"call-automation/internal/auth"
	"call-automation/internal/calls"
	"call-automation/internal/inbound"
	"call-automation/internal/reporting"
	"call-automation/internal/telephony"
	"call-automation/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Authenticator
	Calls     *calls.Service
	Audit     *audit.Service
	Reporting *reporting.Service
	Inbound   *inbound.Service

	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

func (h Handlers) Healthz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and reported without detail.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrValidation), errors.Is(err, inbound.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, inbound.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, telephony.ErrNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "telephony provider not configured"})
	case errors.Is(err, telephony.ErrProvider), errors.Is(err, telephony.ErrRejected):
		logger.FromGin(c).Error("telephony request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "telephony provider error"})
	default:
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer"})
		return 0, false
	}
	return n, true
}
