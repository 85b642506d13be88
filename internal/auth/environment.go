package auth

import (
	"fmt"
	"strings"
)

// Environment selects cookie attributes and production-only safety rules.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvStaging     Environment = "staging"
	EnvPreview     Environment = "preview"
	EnvDevelopment Environment = "development"
)

// ParseEnvironment normalises a configured environment name. Unknown names are an error so
// configuration can fail closed instead of silently relaxing cookie security.
func ParseEnvironment(raw string) (Environment, error) {
	switch env := Environment(strings.ToLower(strings.TrimSpace(raw))); env {
	case EnvProduction, EnvStaging, EnvPreview, EnvDevelopment:
		return env, nil
	case "prod":
		return EnvProduction, nil
	case "dev", "local", "":
		return EnvDevelopment, nil
	default:
		return "", fmt.Errorf("auth: unknown environment %q", raw)
	}
}

// IsProduction reports whether production-only rules apply.
func (e Environment) IsProduction() bool { return e == EnvProduction }

// IsDeployed reports whether the environment is served over TLS on a shared host.
func (e Environment) IsDeployed() bool {
	return e == EnvProduction || e == EnvStaging || e == EnvPreview
}
