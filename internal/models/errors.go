package models

import "fmt"

// InvalidAlertError reports a required alert field that is missing or empty.
// The caller must fix the input; the engine does not retry.
type InvalidAlertError struct {
	Field string
}

func (e *InvalidAlertError) Error() string {
	return fmt.Sprintf("invalid alert: field %q is required", e.Field)
}

// InvalidStrategyError reports an unrecognised fingerprint strategy tag. It
// indicates a configuration bug and is surfaced immediately.
type InvalidStrategyError struct {
	Strategy Strategy
}

func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("invalid fingerprint strategy %q", e.Strategy)
}

// ConfigurationError reports an out-of-range value in a config update. The
// previously active configuration remains in effect.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}
