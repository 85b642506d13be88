package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/permissions"
)

type adminRouteDeps struct {
	Handler  *handlers.AdminHandler
	Resolver *permissions.Resolver
	Checker  *permissions.Checker
}

// registerAdminRoutes screens with the token's role claims first, then re-checks stored
// assignments so a role revoked after login stops working before the access token expires.
func registerAdminRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, deps adminRouteDeps) {
	admin := engine.Group("/api/admin")
	admin.Use(requireAuth, middleware.RequirePermission(deps.Resolver, permissions.SessionViewAny))
	{
		admin.POST("/families/revoke",
			middleware.RequireFreshPermission(deps.Checker, permissions.SessionRevokeAny),
			deps.Handler.RevokeFamily,
		)
		admin.GET("/users/:id/sessions",
			middleware.RequireFreshPermission(deps.Checker, permissions.SessionViewAny),
			deps.Handler.UserSessions,
		)
		admin.POST("/users/:id/sessions/revoke",
			middleware.RequireFreshPermission(deps.Checker, permissions.SessionRevokeAny),
			deps.Handler.RevokeUserSessions,
		)
	}
}
