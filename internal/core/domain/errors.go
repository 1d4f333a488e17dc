package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks provider failures worth retrying (network, timeout, 5xx).
	ErrTransient = errors.New("transient provider error")

	// ErrPermanent marks provider failures that will not change on retry
	// (malformed input, unsupported candidate).
	ErrPermanent = errors.New("permanent provider error")

	// ErrDuplicateSignal is returned when a stage attaches a second signal.
	ErrDuplicateSignal = errors.New("signal already attached for stage")
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Kind error
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Transient wraps err as a retryable provider failure.
func Transient(err error) error {
	return &ProviderError{Kind: ErrTransient, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(err error) error {
	return &ProviderError{Kind: ErrPermanent, Err: err}
}

// ConfigError reports missing or invalid configuration detected before any
// candidate is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
