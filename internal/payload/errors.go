package payload

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("admob configuration error")

// ConfigurationError reports a required default missing with no per-call
// override. It is never silenced by fail-silently callers.
type ConfigurationError struct {
	Field string
	Mode  Mode
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("admob: %s required for %s request: set it in configuration or pass it per call", e.Field, e.Mode)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
