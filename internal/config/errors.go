package config

import (
	"errors"
	"strings"
)

// ConfigError reports every missing or invalid setting at once, so an
// operator can fix the deployment in a single pass.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, "; "))
	}
	if len(parts) == 0 {
		return "config: invalid configuration"
	}
	return "config: " + strings.Join(parts, "; ")
}

func (e *ConfigError) empty() bool { return len(e.Missing) == 0 && len(e.Invalid) == 0 }

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
