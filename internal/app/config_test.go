package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, 20, cfg.Database.MaxOpenConns)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 10*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.GuestAccessTTL)
	require.Equal(t, StorePgx, cfg.Auth.Session.Store)
	require.Equal(t, 720*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 48*time.Hour, cfg.Auth.Session.GuestRefreshTTL)
	require.Equal(t, 3*time.Second, cfg.Auth.Session.StoreTimeout)
	require.Equal(t, "example.com", cfg.Auth.Cookie.Domain)
	require.Equal(t, 12*time.Hour, cfg.Auth.Cookie.CSRFMaxAge)
	require.True(t, cfg.Auth.CSRF.Enabled)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "*/30 * * * *", cfg.Maintenance.SessionSchedule)
	require.Equal(t, "@daily", cfg.Maintenance.RoleSchedule)
	require.Equal(t, 72*time.Hour, cfg.Maintenance.SessionRetention)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, StoreGorm, cfg.Auth.Session.Store)
	require.Equal(t, 1080*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 168*time.Hour, cfg.Auth.Session.GuestRefreshTTL)
	require.Equal(t, 5*time.Second, cfg.Auth.Session.StoreTimeout)
	require.Equal(t, "/api/auth", cfg.Auth.Cookie.RefreshPath)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.Equal(t, "@hourly", cfg.Maintenance.SessionSchedule)

	_, err = ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_ENVIRONMENT", "preview")
	t.Setenv("AUTHCORE_AUTH_SESSION_STORE_TIMEOUT", "750ms")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "preview", cfg.Environment)
	require.Equal(t, 750*time.Millisecond, cfg.Auth.Session.StoreTimeout)
}

func productionConfig() *Config {
	return &Config{
		Environment: "production",
		Server:      ServerConfig{Port: 8443},
		Database:    DatabaseConfig{Driver: "postgres"},
		Auth: AuthConfig{
			JWT:     JWTSettings{Secret: strings.Repeat("s!", 24)},
			Session: SessionSettings{Store: StorePgx, Pepper: strings.Repeat("p!", 16)},
			Cookie:  CookieSettings{Domain: "example.com"},
			CSRF:    CSRFSettings{Enabled: true},
		},
		Maintenance: MaintenanceConfig{Enabled: true, SessionSchedule: "@hourly", RoleSchedule: "@daily"},
	}
}

func TestValidateProductionRules(t *testing.T) {
	require.NoError(t, productionConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.Auth.JWT.Secret = "" }, "auth.jwt.secret must be configured"},
		{"short pepper", func(c *Config) { c.Auth.Session.Pepper = "too-short" }, "auth.session.refresh_pepper must be at least 32 bytes"},
		{"missing domain", func(c *Config) { c.Auth.Cookie.Domain = " " }, "auth.cookie.domain"},
		{"csrf disabled", func(c *Config) { c.Auth.CSRF.Enabled = false }, "auth.csrf.enabled"},
		{"pgx on sqlite", func(c *Config) { c.Database.Driver = "sqlite" }, "requires the postgres driver"},
		{"bad schedule", func(c *Config) { c.Maintenance.SessionSchedule = "sometimes" }, "maintenance.session_schedule failed on cron"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := productionConfig()
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := productionConfig()
	cfg.Environment = "qa"
	require.ErrorContains(t, cfg.Validate(), `unknown environment "qa"`)
}

func TestAuthConfigAdapters(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	cfg := AuthConfig{
		JWT:     JWTSettings{Secret: strings.Repeat("k!", 20), Issuer: "authcore", TTL: 5 * time.Minute},
		Session: SessionSettings{Pepper: strings.Repeat("p", 32), StoreTimeout: time.Second},
		Cookie:  CookieSettings{Domain: " example.com ", RefreshPath: "/api/auth"},
	}

	codecCfg, err := cfg.TokenCodecConfig(clock)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("k!", 20), codecCfg.Secret)
	require.Equal(t, 5*time.Minute, codecCfg.AccessTTL)
	require.NotNil(t, codecCfg.Clock)

	_, err = auth.NewTokenCodec(codecCfg)
	require.NoError(t, err)

	hasher, err := cfg.RefreshHasher()
	require.NoError(t, err)
	require.NotNil(t, hasher)

	cookieCfg := cfg.CookiePolicyConfig(auth.EnvProduction)
	require.Equal(t, "example.com", cookieCfg.Domain)
	require.Equal(t, 5*time.Minute, cookieCfg.AccessTTL)
	require.Equal(t, auth.DefaultRefreshTTL, cookieCfg.RefreshTTL)

	rotatorCfg := cfg.RotatorConfig(clock)
	require.Equal(t, time.Second, rotatorCfg.StoreTimeout)

	_, err = AuthConfig{}.RefreshHasher()
	require.Error(t, err)
}
