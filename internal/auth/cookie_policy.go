package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieKind identifies one of the cookies the core issues.
type CookieKind string

const (
	CookieAccess  CookieKind = "access"
	CookieRefresh CookieKind = "refresh"
	CookieCSRF    CookieKind = "csrf"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
	CSRFCookieName    = "csrf_token"

	// DefaultRefreshCookiePath scopes the refresh cookie to the auth endpoints.
	DefaultRefreshCookiePath = "/api/auth"
)

// CookieAttributes is the resolved attribute set for one cookie.
type CookieAttributes struct {
	Name     string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
	Domain   string
	Path     string
	MaxAge   int
}

// WithMaxAge returns a copy of the attributes with MaxAge replaced.
func (a CookieAttributes) WithMaxAge(seconds int) CookieAttributes {
	a.MaxAge = seconds
	return a
}

// Cookie renders the attributes as an *http.Cookie carrying value.
func (a CookieAttributes) Cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     a.Name,
		Value:    value,
		Path:     a.Path,
		Domain:   a.Domain,
		MaxAge:   a.MaxAge,
		Secure:   a.Secure,
		HttpOnly: a.HTTPOnly,
		SameSite: a.SameSite,
	}
}

// CookiePolicyConfig holds deployment specific cookie settings.
type CookiePolicyConfig struct {
	Environment Environment
	// Domain is the apex domain used for production cookies. Other environments stay host-only.
	Domain      string
	RefreshPath string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	CSRFMaxAge  time.Duration
}

// CookiePolicy maps environment and cookie kind to attributes.
type CookiePolicy struct {
	env         Environment
	domain      string
	refreshPath string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	csrfMaxAge  time.Duration
}

// NewCookiePolicy applies defaults to cfg.
func NewCookiePolicy(cfg CookiePolicyConfig) *CookiePolicy {
	p := &CookiePolicy{
		env:         cfg.Environment,
		domain:      strings.TrimPrefix(strings.TrimSpace(cfg.Domain), "."),
		refreshPath: cfg.RefreshPath,
		accessTTL:   orDefault(cfg.AccessTTL, DefaultAccessTTL),
		refreshTTL:  orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
	}
	if p.refreshPath == "" {
		p.refreshPath = DefaultRefreshCookiePath
	}
	p.csrfMaxAge = orDefault(cfg.CSRFMaxAge, p.refreshTTL)
	return p
}

// Environment returns the environment the policy writes cookies for.
func (p *CookiePolicy) Environment() Environment { return p.env }

// Resolve returns the attributes for kind under env. Unknown environments get development settings.
func (p *CookiePolicy) Resolve(env Environment, kind CookieKind) CookieAttributes {
	attrs := CookieAttributes{Path: "/"}

	switch env {
	case EnvProduction:
		attrs.Secure = true
		attrs.SameSite = http.SameSiteNoneMode
		attrs.Domain = p.domain
	case EnvStaging, EnvPreview:
		attrs.Secure = true
		attrs.SameSite = http.SameSiteNoneMode
	default:
		attrs.SameSite = http.SameSiteLaxMode
	}

	switch kind {
	case CookieAccess:
		attrs.Name = AccessCookieName
		attrs.HTTPOnly = true
		attrs.MaxAge = seconds(p.accessTTL)
	case CookieRefresh:
		attrs.Name = RefreshCookieName
		attrs.HTTPOnly = true
		attrs.Path = p.refreshPath
		attrs.MaxAge = seconds(p.refreshTTL)
	case CookieCSRF:
		attrs.Name = CSRFCookieName
		attrs.HTTPOnly = false
		attrs.MaxAge = seconds(p.csrfMaxAge)
	}

	return attrs
}

// Attributes resolves kind for the configured environment.
func (p *CookiePolicy) Attributes(kind CookieKind) CookieAttributes {
	return p.Resolve(p.env, kind)
}

// Write sets the cookie on the gin response with its default lifetime.
func (p *CookiePolicy) Write(c *gin.Context, kind CookieKind, value string) {
	writeCookie(c, p.Attributes(kind), value)
}

// WriteTTL sets the cookie with an explicit lifetime, used for guest tokens.
func (p *CookiePolicy) WriteTTL(c *gin.Context, kind CookieKind, value string, ttlSeconds int) {
	writeCookie(c, p.Attributes(kind).WithMaxAge(ttlSeconds), value)
}

// Clear expires the cookie on the client.
func (p *CookiePolicy) Clear(c *gin.Context, kind CookieKind) {
	writeCookie(c, p.Attributes(kind).WithMaxAge(-1), "")
}

func writeCookie(c *gin.Context, attrs CookieAttributes, value string) {
	c.SetSameSite(attrs.SameSite)
	c.SetCookie(attrs.Name, value, attrs.MaxAge, attrs.Path, attrs.Domain, attrs.Secure, attrs.HTTPOnly)
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
