package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL defines the fallback validity period for access tokens.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the fallback refresh token lifetime for registered users.
	DefaultRefreshTTL = 45 * 24 * time.Hour
	// DefaultGuestRefreshTTL is the fallback refresh token lifetime for guest users.
	DefaultGuestRefreshTTL = 7 * 24 * time.Hour
)

// TokenType tags the claim set carried by a token.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is implemented by *AccessClaims and *RefreshClaims.
type Claims interface {
	jwt.Claims
	TokenType() TokenType
	SubjectID() string
}

// AccessClaims authorise API calls without a store lookup.
type AccessClaims struct {
	UserID string    `json:"uid"`
	Email  string    `json:"email,omitempty"`
	Roles  []string  `json:"roles"`
	Guest  bool      `json:"guest,omitempty"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) TokenType() TokenType { return c.Type }
func (c *AccessClaims) SubjectID() string    { return c.UserID }

// RefreshClaims identify one session row. The row, not the token, decides whether it is still usable.
type RefreshClaims struct {
	UserID    string    `json:"uid"`
	SessionID string    `json:"sid"`
	FamilyID  string    `json:"fid"`
	Guest     bool      `json:"guest,omitempty"`
	Type      TokenType `json:"type"`
	jwt.RegisteredClaims
}

func (c *RefreshClaims) TokenType() TokenType { return c.Type }
func (c *RefreshClaims) SubjectID() string    { return c.UserID }

// TokenCodecConfig bundles the configuration required to build a TokenCodec.
type TokenCodecConfig struct {
	Secret          string
	Issuer          string
	AccessTTL       time.Duration
	GuestAccessTTL  time.Duration
	RefreshTTL      time.Duration
	GuestRefreshTTL time.Duration
	Clock           func() time.Time
}

// TokenCodec mints and verifies HS256 access and refresh tokens. It performs no I/O and is safe
// for concurrent use.
type TokenCodec struct {
	secret          []byte
	issuer          string
	accessTTL       time.Duration
	guestAccessTTL  time.Duration
	refreshTTL      time.Duration
	guestRefreshTTL time.Duration
	now             func() time.Time
	parser          *jwt.Parser
}

// NewTokenCodec validates cfg and applies TTL defaults.
func NewTokenCodec(cfg TokenCodecConfig) (*TokenCodec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token codec: secret must be provided")
	}

	c := &TokenCodec{
		secret:          []byte(cfg.Secret),
		issuer:          strings.TrimSpace(cfg.Issuer),
		accessTTL:       orDefault(cfg.AccessTTL, DefaultAccessTTL),
		refreshTTL:      orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
		guestRefreshTTL: orDefault(cfg.GuestRefreshTTL, DefaultGuestRefreshTTL),
		now:             time.Now,
	}
	c.guestAccessTTL = orDefault(cfg.GuestAccessTTL, c.accessTTL)
	if cfg.Clock != nil {
		c.now = cfg.Clock
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(opts...)

	return c, nil
}

func orDefault(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

// AccessTTL returns the access token lifetime for the subject kind.
func (c *TokenCodec) AccessTTL(isGuest bool) time.Duration {
	if isGuest {
		return c.guestAccessTTL
	}
	return c.accessTTL
}

// RefreshTTL returns the refresh token lifetime for the subject kind.
func (c *TokenCodec) RefreshTTL(isGuest bool) time.Duration {
	if isGuest {
		return c.guestRefreshTTL
	}
	return c.refreshTTL
}

// MintAccess issues an access token and returns it with its lifetime in seconds.
func (c *TokenCodec) MintAccess(userID, email string, roles []string, isGuest bool) (string, int, error) {
	if strings.TrimSpace(userID) == "" {
		return "", 0, errors.New("token codec: user id is required")
	}

	ttl := c.AccessTTL(isGuest)
	claims := &AccessClaims{
		UserID: userID,
		Email:  email,
		Roles:  append([]string{}, roles...),
		Guest:  isGuest,
		Type:   TokenAccess,
	}
	claims.RegisteredClaims = c.registered(userID, ttl)

	signed, err := c.sign(claims)
	if err != nil {
		return "", 0, err
	}
	return signed, int(ttl / time.Second), nil
}

// MintRefresh issues a refresh token bound to one session row of a family.
func (c *TokenCodec) MintRefresh(userID, sessionID, familyID string, isGuest bool) (string, int, error) {
	if userID == "" || sessionID == "" || familyID == "" {
		return "", 0, errors.New("token codec: user, session and family ids are required")
	}

	ttl := c.RefreshTTL(isGuest)
	claims := &RefreshClaims{
		UserID:    userID,
		SessionID: sessionID,
		FamilyID:  familyID,
		Guest:     isGuest,
		Type:      TokenRefresh,
	}
	claims.RegisteredClaims = c.registered(userID, ttl)

	signed, err := c.sign(claims)
	if err != nil {
		return "", 0, err
	}
	return signed, int(ttl / time.Second), nil
}

func (c *TokenCodec) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *TokenCodec) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token codec: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry, then asserts the token carries the expected type.
func (c *TokenCodec) Verify(token string, expected TokenType) (Claims, error) {
	var (
		claims Claims
		err    error
	)
	switch expected {
	case TokenAccess:
		var access *AccessClaims
		access, err = c.VerifyAccess(token)
		claims = access
	case TokenRefresh:
		var refresh *RefreshClaims
		refresh, err = c.VerifyRefresh(token)
		claims = refresh
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrTypeMismatch, expected)
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyAccess returns the claims of a valid access token.
func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenAccess {
		return nil, ErrTypeMismatch
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrInvalidSignature)
	}
	return &claims, nil
}

// VerifyRefresh returns the claims of a valid refresh token.
func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenRefresh {
		return nil, ErrTypeMismatch
	}
	if claims.UserID == "" || claims.SessionID == "" || claims.FamilyID == "" {
		return nil, fmt.Errorf("%w: missing session binding", ErrInvalidSignature)
	}
	return &claims, nil
}

// parse relies on jwt/v5 checking the signature before any time based claim, so an
// expiry error always refers to an authentic token.
func (c *TokenCodec) parse(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidSignature)
	}

	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}
