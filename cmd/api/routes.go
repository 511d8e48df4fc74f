package main

import (
	"call-automation/internal/httpapi"
	"call-automation/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")

	// Public: token issuance and endpoints called by the call scenarios.
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)
	api.POST("/call-transcript", h.CallTranscript)
	api.GET("/inbound/webhook/config", h.InboundWebhookConfig)

	protected := api.Group("")
	protected.Use(authMW, rbac.RequireAnyRole(rbac.RoleOperator))
	{
		protected.POST("/calls", h.CreateCall)
		protected.GET("/calls", h.ListCalls)
		protected.GET("/calls/:id", h.GetCall)
		protected.GET("/calls/:id/events", h.CallEvents)
		protected.GET("/calls/:id/provider-history", h.ProviderHistory)
		protected.GET("/analytics", h.Analytics)
		protected.GET("/inbound/config", h.GetInboundConfig)
	}

	admin := api.Group("")
	admin.Use(authMW, rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		admin.PUT("/inbound/config", h.UpdateInboundConfig)
	}
}
