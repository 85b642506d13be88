package auth

import (
	"fmt"

	"github.com/charlesng35/authcore/pkg/crypto"
)

// CSRFTokenBytes is the entropy of an issued CSRF token.
const CSRFTokenBytes = 32

// CSRFGuard issues and checks double-submit tokens. It holds no state.
type CSRFGuard struct{}

// NewCSRFGuard returns a guard.
func NewCSRFGuard() *CSRFGuard { return &CSRFGuard{} }

// Issue returns a fresh base64url token carrying 256 bits from crypto/rand.
func (g *CSRFGuard) Issue() (string, error) {
	token, err := crypto.GenerateToken(CSRFTokenBytes)
	if err != nil {
		return "", fmt.Errorf("csrf: generate token: %w", err)
	}
	return token, nil
}

// Validate reports whether the submitted token equals the cookie token. Missing values and
// length mismatches are rejected without comparing content.
func (g *CSRFGuard) Validate(submitted, cookie string) bool {
	return crypto.ConstantTimeEqual(submitted, cookie)
}
