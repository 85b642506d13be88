package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/permissions"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

// AuthHandler exposes session rotation, logout and introspection over HTTP.
type AuthHandler struct {
	rotator  *iauth.SessionRotator
	codec    *iauth.TokenCodec
	policy   *iauth.CookiePolicy
	guard    *iauth.CSRFGuard
	resolver *permissions.Resolver
	log      *zap.Logger
}

func NewAuthHandler(
	rotator *iauth.SessionRotator,
	codec *iauth.TokenCodec,
	policy *iauth.CookiePolicy,
	guard *iauth.CSRFGuard,
	resolver *permissions.Resolver,
) *AuthHandler {
	return &AuthHandler{
		rotator:  rotator,
		codec:    codec,
		policy:   policy,
		guard:    guard,
		resolver: resolver,
		log:      logger.WithModule("auth_handler"),
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty,max=4096"`
	SessionID    string `json:"session_id" validate:"omitempty,uuid4"`
	FamilyID     string `json:"family_id" validate:"omitempty,uuid4"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	SessionID        string `json:"session_id"`
	FamilyID         string `json:"family_id"`
}

type sessionView struct {
	ID         string    `json:"id"`
	FamilyID   string    `json:"family_id"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

// GET /api/auth/csrf
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	token := c.Writer.Header().Get(middleware.CSRFHeaderName)
	if token == "" {
		token, _ = c.Cookie(iauth.CSRFCookieName)
	}
	if token == "" {
		issued, err := h.guard.Issue()
		if err != nil {
			response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
			return
		}
		h.policy.Write(c, iauth.CookieCSRF, issued)
		token = issued
	}

	response.Success(c, http.StatusOK, gin.H{"csrf_token": token})
}

// POST /api/auth/refresh
//
// The refresh token is read from the JSON body when present, otherwise from the refresh cookie.
// Body callers get the successor in the body; cookie callers only get it as a cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if hasBody(c) && !bindAndValidate(c, &req) {
		return
	}

	token := strings.TrimSpace(req.RefreshToken)
	fromBody := token != ""
	if !fromBody {
		token, _ = c.Cookie(iauth.RefreshCookieName)
	}
	if token == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	client := clientOf(c)
	tokens, err := h.rotator.Rotate(requestContext(c), iauth.RotateRequest{
		RefreshToken: token,
		SessionID:    req.SessionID,
		FamilyID:     req.FamilyID,
		UserAgent:    client.UserAgent,
		IP:           client.IP,
	})
	if err != nil {
		mapped := authError(err)
		if mapped.StatusCode == http.StatusUnauthorized {
			h.clearSessionCookies(c)
		}
		h.log.Debug("refresh failed",
			zap.String("reason", string(iauth.RejectionReason(err))),
			zap.Int("status", mapped.StatusCode),
		)
		response.Error(c, mapped)
		return
	}

	h.writeSessionCookies(c, tokens)

	payload := tokenResponse{
		AccessToken:      tokens.AccessToken,
		ExpiresIn:        tokens.AccessTTL,
		RefreshExpiresIn: tokens.RefreshTTL,
		SessionID:        tokens.SessionID,
		FamilyID:         tokens.FamilyID,
	}
	if fromBody {
		payload.RefreshToken = tokens.RefreshToken
	}
	response.Success(c, http.StatusOK, payload)
}

// POST /api/auth/logout
//
// Logout always clears the session cookies. A refresh token that no longer names an active
// session is treated as already logged out.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if hasBody(c) && !bindAndValidate(c, &req) {
		return
	}

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token, _ = c.Cookie(iauth.RefreshCookieName)
	}
	h.clearSessionCookies(c)

	claims, err := h.codec.VerifyRefresh(token)
	if err != nil {
		response.Success(c, http.StatusOK, gin.H{"revoked": false})
		return
	}

	err = h.rotator.Logout(requestContext(c), claims.UserID, claims.SessionID)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"revoked": true})
	case errors.Is(err, iauth.ErrNotFound):
		response.Success(c, http.StatusOK, gin.H{"revoked": false})
	default:
		response.Error(c, authError(err))
	}
}

// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	revoked, err := h.rotator.RevokeUser(requestContext(c), claims.UserID)
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	h.clearSessionCookies(c)
	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}

// GET /api/auth/sessions
func (h *AuthHandler) Sessions(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	sessions, err := h.rotator.ListSessions(requestContext(c), claims.UserID)
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	current := ""
	if cookie, err := c.Cookie(iauth.RefreshCookieName); err == nil {
		if refresh, err := h.codec.VerifyRefresh(cookie); err == nil && refresh.UserID == claims.UserID {
			current = refresh.SessionID
		}
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
			Current:    s.ID == current,
		})
	}

	response.Success(c, http.StatusOK, views)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	assignments := permissions.FromClaims(claims.Roles)
	payload := gin.H{
		"user_id":     claims.UserID,
		"email":       claims.Email,
		"guest":       claims.Guest,
		"roles":       h.resolver.RoleNames(assignments),
		"permissions": h.resolver.EffectivePermissions(assignments).Sorted(),
		"max_level":   h.resolver.MaxLevel(assignments),
	}
	if claims.ExpiresAt != nil {
		payload["expires_at"] = claims.ExpiresAt.Time
	}

	response.Success(c, http.StatusOK, payload)
}

func (h *AuthHandler) writeSessionCookies(c *gin.Context, tokens iauth.Tokens) {
	h.policy.WriteTTL(c, iauth.CookieAccess, tokens.AccessToken, tokens.AccessTTL)
	h.policy.WriteTTL(c, iauth.CookieRefresh, tokens.RefreshToken, tokens.RefreshTTL)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	h.policy.Clear(c, iauth.CookieAccess)
	h.policy.Clear(c, iauth.CookieRefresh)
}
