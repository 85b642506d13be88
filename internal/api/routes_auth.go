package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
)

// registerAuthRoutes mounts the session endpoints. Refresh and logout authenticate with the
// refresh token itself, so they sit outside the access token guard.
func registerAuthRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, h *handlers.AuthHandler) {
	auth := engine.Group("/api/auth")
	{
		auth.GET("/csrf", h.CSRFToken)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
	}

	protected := engine.Group("/api/auth")
	protected.Use(requireAuth)
	{
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.Sessions)
		protected.POST("/logout-all", h.LogoutAll)
	}
}
