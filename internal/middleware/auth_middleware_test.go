package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/authcore/internal/auth"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestCodec(t *testing.T) (*iauth.TokenCodec, *fixedClock) {
	t.Helper()

	clock := &fixedClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	codec, err := iauth.NewTokenCodec(iauth.TokenCodecConfig{
		Secret: "middleware-secret-0123456789abcdef01",
		Issuer: "test-suite",
		Clock:  clock.Now,
	})
	require.NoError(t, err)
	return codec, clock
}

func mintAccess(t *testing.T, codec *iauth.TokenCodec, userID string, roles ...string) string {
	t.Helper()
	token, _, err := codec.MintAccess(userID, userID+"@example.com", roles, false)
	require.NoError(t, err)
	return token
}

func newAuthRouter(codec *iauth.TokenCodec) *gin.Engine {
	r := gin.New()
	r.GET("/secure", Auth(codec), func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserIDKey),
			"email":   claims.Email,
			"claims":  ok,
		})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	codec, _ := newTestCodec(t)
	r := newAuthRouter(codec)

	// Missing credentials -> 401
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	// Valid bearer token -> downstream handler executes
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+mintAccess(t, codec, "user-123"))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
	require.Equal(t, "user-123@example.com", payload["email"])
	require.Equal(t, true, payload["claims"])
}

func TestAuthMiddlewareAcceptsCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	codec, _ := newTestCodec(t)
	r := newAuthRouter(codec)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: iauth.AccessCookieName, Value: mintAccess(t, codec, "cookie-user")})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cookie-user")
}

func TestAuthMiddlewareRejectsInvalidTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	codec, clock := newTestCodec(t)
	r := newAuthRouter(codec)

	refresh, _, err := codec.MintRefresh("user-1", "session-1", "family-1", false)
	require.NoError(t, err)
	expired := mintAccess(t, codec, "user-1")

	other, err := iauth.NewTokenCodec(iauth.TokenCodecConfig{Secret: "another-secret-0123456789abcdef0123", Issuer: "test-suite", Clock: clock.Now})
	require.NoError(t, err)
	foreign := mintAccess(t, other, "user-1")

	clock.now = clock.now.Add(16 * time.Minute)

	for name, token := range map[string]string{
		"refresh as access": refresh,
		"expired":           expired,
		"foreign signature": foreign,
		"garbage":           "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Contains(t, w.Body.String(), "UNAUTHORIZED")
		})
	}
}
