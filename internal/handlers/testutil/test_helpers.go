package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	iauth "github.com/charlesng35/authcore/internal/auth"
	sharedtestutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/permissions"
	"github.com/charlesng35/authcore/pkg/response"
)

const (
	testSecret = "test-suite-super-secret-key-32-bytes!!"
	testPepper = "test-suite-refresh-pepper-32-bytes!!"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Config   *app.Config
	Codec    *iauth.TokenCodec
	Rotator  *iauth.SessionRotator
	Roles    *permissions.GormAssignmentReader
	Subjects *iauth.GormSubjectLoader

	csrfToken  string
	csrfCookie *http.Cookie
}

// EnvOption customises NewEnv.
type EnvOption func(*envOptions)

type envOptions struct {
	wrapStore func(iauth.SessionStore) iauth.SessionStore
	health    *monitoring.HealthManager
}

// WithStoreWrapper lets a test intercept session store calls, e.g. to simulate an outage.
func WithStoreWrapper(fn func(iauth.SessionStore) iauth.SessionStore) EnvOption {
	return func(o *envOptions) {
		o.wrapStore = fn
	}
}

// WithHealthManager replaces the default empty health manager.
func WithHealthManager(manager *monitoring.HealthManager) EnvOption {
	return func(o *envOptions) {
		o.health = manager
	}
}

// NewEnv provisions a fresh handler test environment with migrations and the default role table applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	table, err := permissions.DefaultRoleTable()
	require.NoError(t, err)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeeders(permissions.Seeder(table)))

	cfg := &app.Config{
		Environment: "development",
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: testSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				Store:        app.StoreGorm,
				Pepper:       testPepper,
				RefreshTTL:   24 * time.Hour,
				StoreTimeout: 5 * time.Second,
			},
			Cookie: app.CookieSettings{RefreshPath: "/api/auth"},
			CSRF:   app.CSRFSettings{Enabled: true},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	env, err := cfg.ParsedEnvironment()
	require.NoError(t, err)

	codecCfg, err := cfg.Auth.TokenCodecConfig(nil)
	require.NoError(t, err)
	codec, err := iauth.NewTokenCodec(codecCfg)
	require.NoError(t, err)

	hasher, err := cfg.Auth.RefreshHasher()
	require.NoError(t, err)

	resolver, err := permissions.NewResolver(table, nil)
	require.NoError(t, err)
	roles := permissions.NewGormAssignmentReader(db)
	checker, err := permissions.NewChecker(roles, resolver)
	require.NoError(t, err)
	subjects := iauth.NewGormSubjectLoader(db, checker)

	var store iauth.SessionStore = iauth.NewGormSessionStore(db)
	if options.wrapStore != nil {
		store = options.wrapStore(store)
	}

	rotator, err := iauth.NewSessionRotator(codec, store, hasher, subjects, cfg.Auth.RotatorConfig(nil))
	require.NoError(t, err)

	health := options.health
	if health == nil {
		health = monitoring.NewHealthManager(0)
	}

	router, err := api.NewRouter(api.Dependencies{
		Config:   cfg,
		Codec:    codec,
		Rotator:  rotator,
		Policy:   iauth.NewCookiePolicy(cfg.Auth.CookiePolicyConfig(env)),
		Guard:    iauth.NewCSRFGuard(),
		Resolver: resolver,
		Checker:  checker,
		Health:   health,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Config:   cfg,
		Codec:    codec,
		Rotator:  rotator,
		Roles:    roles,
		Subjects: subjects,
	}
}

// CreateUser inserts an active user with a random email and grants the given roles.
func (e *Env) CreateUser(roles ...string) *models.User {
	e.T.Helper()

	user := &models.User{
		Email:    "user-" + uuid.NewString() + "@example.com",
		IsActive: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)

	for _, role := range roles {
		require.NoError(e.T, e.Roles.Grant(context.Background(), user.ID, role, nil, ""))
	}
	return user
}

// Login starts a session for user the way the credential flow does after a successful sign in.
func (e *Env) Login(user *models.User) iauth.Tokens {
	e.T.Helper()

	subject, err := e.Subjects.LoadSubject(context.Background(), user.ID)
	require.NoError(e.T, err)

	tokens, err := e.Rotator.IssueInitial(context.Background(), subject, iauth.Client{
		UserAgent: "handler-tests",
		IP:        "127.0.0.1",
	})
	require.NoError(e.T, err)
	require.NotEmpty(e.T, tokens.AccessToken)
	require.NotEmpty(e.T, tokens.RefreshToken)
	return tokens
}

// SessionCookies returns the cookies a browser would hold after receiving tokens.
func SessionCookies(tokens iauth.Tokens) []*http.Cookie {
	return []*http.Cookie{
		{Name: iauth.AccessCookieName, Value: tokens.AccessToken},
		{Name: iauth.RefreshCookieName, Value: tokens.RefreshToken},
	}
}

// ResponseCookie returns the named Set-Cookie from a recorded response, or nil.
func ResponseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// TokenPayload mirrors the refresh response payload.
type TokenPayload struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	SessionID        string `json:"session_id"`
	FamilyID         string `json:"family_id"`
}

// SessionPayload mirrors one entry of the session listing.
type SessionPayload struct {
	ID        string `json:"id"`
	FamilyID  string `json:"family_id"`
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
	Current   bool   `json:"current"`
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding, the bearer
// token and CSRF attestation automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, false, cookies)
}

// RequestWithoutCSRF is Request without the double-submit token, for exercising the guard.
func (e *Env) RequestWithoutCSRF(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, true, cookies)
}

func (e *Env) request(method, path string, body any, token string, skipCSRF bool, cookies []*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	if !skipCSRF && requiresCSRFAttestation(method) {
		e.ensureCSRFToken()
		req.AddCookie(e.csrfCookie)
		req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	e.captureCSRF(w)
	return w
}

func (e *Env) ensureCSRFToken() {
	if e.csrfToken != "" && e.csrfCookie != nil {
		return
	}
	resp := e.request(http.MethodGet, "/api/auth/csrf", nil, "", true, nil)
	require.Equal(e.T, http.StatusOK, resp.Code, resp.Body.String())
	require.NotEmpty(e.T, e.csrfToken)
	require.NotNil(e.T, e.csrfCookie)
}

func (e *Env) captureCSRF(w *httptest.ResponseRecorder) {
	cookie := ResponseCookie(w, iauth.CSRFCookieName)
	if cookie == nil || cookie.Value == "" {
		return
	}
	// A fresh cookie always arrives with the matching header on safe requests.
	token := w.Header().Get(middleware.CSRFHeaderName)
	if token == "" {
		token = cookie.Value
	}
	e.csrfToken = token
	e.csrfCookie = &http.Cookie{Name: cookie.Name, Value: cookie.Value}
}

func requiresCSRFAttestation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
