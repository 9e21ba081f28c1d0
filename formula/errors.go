package formula

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every error caused by a malformed formula
// or an invalid option reference.
var ErrConfiguration = errors.New("configuration error")

// ConfigError reports a malformed formula. Subject names the offending
// declaration or source range.
type ConfigError struct {
	Subject string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Subject, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// Errorf returns a ConfigError about subject.
func Errorf(subject, format string, args ...any) error {
	return &ConfigError{Subject: subject, Err: fmt.Errorf(format, args...)}
}
