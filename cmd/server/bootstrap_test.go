package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/app"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()

	cfg := &app.Config{
		Environment: "development",
		Server:      app.ServerConfig{Port: 8000},
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "authcore.sqlite"),
		},
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Issuer: "bootstrap-test", TTL: 15 * time.Minute},
			Session: app.SessionSettings{Store: app.StoreGorm, RefreshTTL: time.Hour},
			Cookie:  app.CookieSettings{RefreshPath: "/api/auth"},
			CSRF:    app.CSRFSettings{Enabled: true},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true, Timeout: time.Second},
		},
		Maintenance: app.MaintenanceConfig{
			Enabled:          true,
			SessionSchedule:  "@hourly",
			RoleSchedule:     "@daily",
			SessionRetention: time.Hour,
			StaleAfter:       time.Hour,
		},
	}

	_, err := app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBootstrapRuntimeServesHealthAndSessions(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	stack, err := bootstrapRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Cleaner)
	require.Nil(t, stack.Pool)
	require.IsType(t, &iauth.GormSessionStore{}, stack.Store)

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var roles int64
	require.NoError(t, stack.DB.Model(&models.Role{}).Count(&roles).Error)
	require.EqualValues(t, 5, roles)

	user := &models.User{Email: "bootstrap@example.com", IsActive: true}
	require.NoError(t, stack.DB.Create(user).Error)

	tokens, err := stack.Rotator.IssueInitial(ctx, iauth.Subject{UserID: user.ID, Email: user.Email}, iauth.Client{})
	require.NoError(t, err)

	rotated, err := stack.Rotator.Rotate(ctx, iauth.RotateRequest{RefreshToken: tokens.RefreshToken})
	require.NoError(t, err)
	require.Equal(t, tokens.FamilyID, rotated.FamilyID)

	require.NoError(t, stack.Cleaner.RunOnce(ctx))
	jobs := stack.Tracker.Snapshot()
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		require.Zero(t, job.ConsecutiveFailures, job.Job)
	}
}

func TestBootstrapRuntimeWithoutMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = false

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Cleaner)
}

func TestBootstrapRuntimeFailsOnUnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver:       " PostgreSQL ",
		MaxOpenConns: 12,
		Postgres: app.DBAuthConfig{
			Host:     "db.internal",
			Port:     5433,
			Database: "authcore",
			Username: "svc",
			Password: " secret ",
		},
	}}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "authcore", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)
	require.Equal(t, "secret", dbCfg.Password)
	require.Equal(t, 12, dbCfg.MaxOpenConns)

	require.Equal(t, "sqlite", convertDatabaseConfig(&app.Config{}).Driver)
}

func TestSessionStoreName(t *testing.T) {
	cfg := &app.Config{}
	require.Equal(t, app.StoreGorm, sessionStoreName(cfg))

	cfg.Auth.Session.Store = " PGX "
	require.Equal(t, app.StorePgx, sessionStoreName(cfg))
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	err := run(context.Background(), []string{"-bogus"})
	require.Error(t, err)
}
