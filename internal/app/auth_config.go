package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/pkg/validator"
)

const minSecretBytes = 32

// Session store backends.
const (
	StoreGorm = "gorm"
	StorePgx  = "pgx"
)

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
	Cookie  CookieSettings  `mapstructure:"cookie"`
	CSRF    CSRFSettings    `mapstructure:"csrf"`
}

// JWTSettings configures signed access and refresh tokens.
type JWTSettings struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	TTL            time.Duration `mapstructure:"access_token_ttl" validate:"min=0"`
	GuestAccessTTL time.Duration `mapstructure:"guest_access_token_ttl" validate:"min=0"`
}

// SessionSettings configures refresh token lifetimes and the session store.
type SessionSettings struct {
	Store           string        `mapstructure:"store" validate:"omitempty,oneof=gorm pgx"`
	Pepper          string        `mapstructure:"refresh_pepper"`
	RefreshTTL      time.Duration `mapstructure:"refresh_token_ttl" validate:"min=0"`
	GuestRefreshTTL time.Duration `mapstructure:"guest_refresh_token_ttl" validate:"min=0"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout" validate:"min=0"`
}

// CookieSettings configures cookie scoping. Security attributes follow the environment.
type CookieSettings struct {
	Domain      string        `mapstructure:"domain"`
	RefreshPath string        `mapstructure:"refresh_path" validate:"omitempty,startswith=/"`
	CSRFMaxAge  time.Duration `mapstructure:"csrf_max_age" validate:"min=0"`
}

// CSRFSettings controls the double-submit guard on state-changing routes.
type CSRFSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// ParsedEnvironment returns the configured deployment environment.
func (c *Config) ParsedEnvironment() (auth.Environment, error) {
	return auth.ParseEnvironment(c.Environment)
}

// Validate checks struct constraints and the production rules. Unknown environments are rejected
// so cookie attributes never silently fall back to development settings.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var errs error
	if err := validator.ValidateStruct(c); err != nil {
		errs = multierr.Append(errs, err)
	}

	env, err := c.ParsedEnvironment()
	if err != nil {
		return multierr.Append(errs, err)
	}

	if env.IsProduction() {
		errs = multierr.Append(errs, requireSecret("auth.jwt.secret", c.Auth.JWT.Secret))
		errs = multierr.Append(errs, requireSecret("auth.session.refresh_pepper", c.Auth.Session.Pepper))
		if strings.TrimSpace(c.Auth.Cookie.Domain) == "" {
			errs = multierr.Append(errs, errors.New("auth.cookie.domain must be configured in production"))
		}
		if !c.Auth.CSRF.Enabled {
			errs = multierr.Append(errs, errors.New("auth.csrf.enabled cannot be disabled in production"))
		}
	}

	if c.Auth.Session.Store == StorePgx && !isPostgres(c.Database.Driver) {
		errs = multierr.Append(errs, fmt.Errorf("auth.session.store %q requires the postgres driver", StorePgx))
	}

	return errs
}

func requireSecret(key, value string) error {
	length, err := KeyByteLength(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if length == 0 {
		return fmt.Errorf("%s must be configured in production", key)
	}
	if length < minSecretBytes {
		return fmt.Errorf("%s must be at least %d bytes (current: %d)", key, minSecretBytes, length)
	}
	return nil
}

func isPostgres(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		return true
	default:
		return false
	}
}

// TokenCodecConfig converts AuthConfig into TokenCodec parameters.
func (c AuthConfig) TokenCodecConfig(clock func() time.Time) (auth.TokenCodecConfig, error) {
	secret, err := DecodeKey(c.JWT.Secret)
	if err != nil {
		return auth.TokenCodecConfig{}, fmt.Errorf("auth.jwt.secret: %w", err)
	}

	return auth.TokenCodecConfig{
		Secret:          string(secret),
		Issuer:          c.JWT.Issuer,
		AccessTTL:       c.JWT.TTL,
		GuestAccessTTL:  c.JWT.GuestAccessTTL,
		RefreshTTL:      c.Session.RefreshTTL,
		GuestRefreshTTL: c.Session.GuestRefreshTTL,
		Clock:           clock,
	}, nil
}

// RefreshHasher builds the peppered hasher used for stored refresh token digests.
func (c AuthConfig) RefreshHasher() (*auth.RefreshHasher, error) {
	pepper, err := DecodeKey(c.Session.Pepper)
	if err != nil {
		return nil, fmt.Errorf("auth.session.refresh_pepper: %w", err)
	}
	return auth.NewRefreshHasher(string(pepper))
}

// CookiePolicyConfig converts AuthConfig into CookiePolicy parameters.
func (c AuthConfig) CookiePolicyConfig(env auth.Environment) auth.CookiePolicyConfig {
	accessTTL := c.JWT.TTL
	if accessTTL <= 0 {
		accessTTL = auth.DefaultAccessTTL
	}
	refreshTTL := c.Session.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTTL
	}

	return auth.CookiePolicyConfig{
		Environment: env,
		Domain:      strings.TrimSpace(c.Cookie.Domain),
		RefreshPath: c.Cookie.RefreshPath,
		AccessTTL:   accessTTL,
		RefreshTTL:  refreshTTL,
		CSRFMaxAge:  c.Cookie.CSRFMaxAge,
	}
}

// RotatorConfig converts AuthConfig into SessionRotator parameters.
func (c AuthConfig) RotatorConfig(clock func() time.Time) auth.RotatorConfig {
	return auth.RotatorConfig{
		StoreTimeout: c.Session.StoreTimeout,
		Clock:        clock,
	}
}
