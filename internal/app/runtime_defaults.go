package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/authcore/pkg/crypto"
)

const (
	jwtSecretBytes     = 48
	refreshPepperBytes = 32
)

// ApplyRuntimeDefaults generates signing and pepper material for non-production runs so a local
// server starts without a configuration file. Production is left untouched and fails validation
// instead. The returned map names generated keys so callers can log the event without values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	env, err := cfg.ParsedEnvironment()
	if err != nil || env.IsProduction() {
		return generated, nil
	}

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Auth.Session.Pepper) == "" {
		pepper, err := crypto.GenerateToken(refreshPepperBytes)
		if err != nil {
			return nil, fmt.Errorf("generate refresh pepper: %w", err)
		}
		cfg.Auth.Session.Pepper = pepper
		generated["auth.session.refresh_pepper"] = true
	}

	return generated, nil
}
