package config

import "fmt"

// ConfigError reports a fail-fast configuration problem: a missing
// required field or a reference to a cluster object that does not exist
// at startup. It carries the offending
// field name so callers can report it without parsing the message.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configError(field string, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}
