package httpapi

import (
	"net/http"

	"call-automation/internal/calls"

	"github.com/gin-gonic/gin"
)

func (h Handlers) CreateCall(c *gin.Context) {
	var req calls.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.Begin(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) GetCall(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) ListCalls(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", calls.DefaultListLimit)
	if !ok {
		return
	}
	items, err := h.Calls.List(c.Request.Context(), skip, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// CallEvents returns the lifecycle trail of one call.
func (h Handlers) CallEvents(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.Calls.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	events, err := h.Audit.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// ProviderHistory proxies the telephony provider's record of the call session.
func (h Handlers) ProviderHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	hist, err := h.Calls.ProviderHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h Handlers) Analytics(c *gin.Context) {
	out, err := h.Reporting.Analytics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
