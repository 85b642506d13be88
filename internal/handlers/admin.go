package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/middleware"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

// AdminHandler lets operators inspect and force-revoke sessions of other users.
type AdminHandler struct {
	rotator *iauth.SessionRotator
	log     *zap.Logger
}

func NewAdminHandler(rotator *iauth.SessionRotator) *AdminHandler {
	return &AdminHandler{rotator: rotator, log: logger.WithModule("admin_handler")}
}

type revokeFamilyRequest struct {
	FamilyID string `json:"family_id" validate:"required,uuid4"`
}

// POST /api/admin/families/revoke
func (h *AdminHandler) RevokeFamily(c *gin.Context) {
	var req revokeFamilyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	revoked, err := h.rotator.RevokeFamily(requestContext(c), req.FamilyID)
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	h.log.Info("session family revoked by operator",
		zap.String("family_id", req.FamilyID),
		zap.String("operator", c.GetString(middleware.CtxUserIDKey)),
		zap.Int64("revoked", revoked),
	)
	response.Success(c, http.StatusOK, gin.H{"family_id": req.FamilyID, "revoked": revoked})
}

// GET /api/admin/users/:id/sessions
func (h *AdminHandler) UserSessions(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.Error(c, apperrors.NewBadRequest("user id is required"))
		return
	}

	sessions, err := h.rotator.ListSessions(requestContext(c), userID)
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:         s.ID,
			FamilyID:   s.FamilyID,
			UserAgent:  s.UserAgent,
			IP:         s.IPAddress,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
			ExpiresAt:  s.ExpiresAt,
		})
	}
	response.Success(c, http.StatusOK, views)
}

// POST /api/admin/users/:id/sessions/revoke
func (h *AdminHandler) RevokeUserSessions(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.Error(c, apperrors.NewBadRequest("user id is required"))
		return
	}

	revoked, err := h.rotator.RevokeUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	h.log.Info("user sessions revoked by operator",
		zap.String("user_id", userID),
		zap.String("operator", c.GetString(middleware.CtxUserIDKey)),
		zap.Int64("revoked", revoked),
	)
	response.Success(c, http.StatusOK, gin.H{"user_id": userID, "revoked": revoked})
}
