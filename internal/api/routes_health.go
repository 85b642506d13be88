package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, h *handlers.HealthHandler) {
	registerHealthEndpoints(r, h)
	registerHealthEndpoints(r.Group("/api"), h)
}

func registerHealthEndpoints(router gin.IRouter, h *handlers.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/health/live", h.Liveness)
	router.GET("/health/ready", h.Readiness)
}
