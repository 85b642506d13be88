package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/permissions"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
	"github.com/charlesng35/authcore/pkg/response"
)

// RequirePermission authorises from the role claims of the access token. It must run after Auth.
func RequirePermission(resolver *permissions.Resolver, permissionID string) gin.HandlerFunc {
	return requireClaims(func(assignments []permissions.Assignment) bool {
		allowed := resolver.HasPermission(assignments, permissionID)
		result := "deny"
		if allowed {
			result = "allow"
		}
		metrics.PermissionChecks.WithLabelValues(permissionID, result).Inc()
		return allowed
	})
}

// RequireRole admits requests whose token carries role.
func RequireRole(resolver *permissions.Resolver, role string) gin.HandlerFunc {
	return requireClaims(func(assignments []permissions.Assignment) bool {
		return resolver.HasRole(assignments, role)
	})
}

// RequireLevel admits requests whose highest role level is at least level.
func RequireLevel(resolver *permissions.Resolver, level int) gin.HandlerFunc {
	return requireClaims(func(assignments []permissions.Assignment) bool {
		return resolver.MaxLevel(assignments) >= level
	})
}

func requireClaims(allow func([]permissions.Assignment) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Abort(c, apperrors.ErrUnauthorized)
			return
		}
		if !allow(permissions.FromClaims(claims.Roles)) {
			response.Abort(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequireFreshPermission checks permissionID against stored role assignments instead of token
// claims, so grants revoked since the token was minted take effect immediately.
func RequireFreshPermission(checker *permissions.Checker, permissionID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Abort(c, apperrors.ErrUnauthorized)
			return
		}

		allowed, err := checker.Check(c.Request.Context(), userID, permissionID)
		if err != nil {
			logger.WithModule("permissions").Error("permission check failed",
				zap.String("user_id", userID),
				zap.String("permission", permissionID),
				zap.Error(err),
			)
			response.Abort(c, apperrors.ErrServiceUnavailable.WithInternal(err))
			return
		}
		if !allowed {
			response.Abort(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
