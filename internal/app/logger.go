package app

import (
	"strings"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/pkg/logger"
)

// ConfigureLogging initialises the global logger. Development runs use zap's console encoder;
// every other environment logs JSON. The level defaults to info.
func ConfigureLogging(level string, env string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}

	parsed, err := auth.ParseEnvironment(env)
	development := err == nil && !parsed.IsDeployed()
	return logger.InitWithOptions(level, development)
}
