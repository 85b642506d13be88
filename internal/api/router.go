package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/authcore/internal/app"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/permissions"
)

// Dependencies are the long-lived services the HTTP surface is built from.
type Dependencies struct {
	Config   *app.Config
	Codec    *iauth.TokenCodec
	Rotator  *iauth.SessionRotator
	Policy   *iauth.CookiePolicy
	Guard    *iauth.CSRFGuard
	Resolver *permissions.Resolver
	Checker  *permissions.Checker
	// Health may be nil, in which case probes report an empty, healthy result.
	Health *monitoring.HealthManager
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.Codec == nil:
		return errors.New("token codec must be provided")
	case d.Rotator == nil:
		return errors.New("session rotator must be provided")
	case d.Policy == nil:
		return errors.New("cookie policy must be provided")
	case d.Guard == nil:
		return errors.New("csrf guard must be provided")
	case d.Resolver == nil:
		return errors.New("permission resolver must be provided")
	case d.Checker == nil:
		return errors.New("permission checker must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers the auth routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(deps.Policy.Environment().IsDeployed()))
	r.Use(middleware.CSRF(deps.Guard, deps.Policy, cfg.Auth.CSRF.Enabled))

	if cfg.Monitoring.Health.Enabled {
		registerHealthRoutes(r, handlers.NewHealthHandler(deps.Health))
	}

	requireAuth := middleware.Auth(deps.Codec)
	authHandler := handlers.NewAuthHandler(deps.Rotator, deps.Codec, deps.Policy, deps.Guard, deps.Resolver)
	registerAuthRoutes(r, requireAuth, authHandler)
	registerAdminRoutes(r, requireAuth, adminRouteDeps{
		Handler:  handlers.NewAdminHandler(deps.Rotator),
		Resolver: deps.Resolver,
		Checker:  deps.Checker,
	})

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
