package httpapi

import (
	"net/http"

	"call-automation/internal/inbound"

	"github.com/gin-gonic/gin"
)

func (h Handlers) GetInboundConfig(c *gin.Context) {
	cfg, err := h.Inbound.Get(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h Handlers) UpdateInboundConfig(c *gin.Context) {
	var u inbound.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cfg, err := h.Inbound.Update(c.Request.Context(), u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// InboundWebhookConfig is fetched by the inbound call scenario; it needs no auth.
func (h Handlers) InboundWebhookConfig(c *gin.Context) {
	cfg, err := h.Inbound.ForProvider(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
