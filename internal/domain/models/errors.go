package models

import (
	"fmt"
	"net/http"
)

// ValidationError rejects a single input; it never aborts a batch.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// UpstreamError reports a relay failure. When Response is set the upstream
// answered with a non-success status and its body must be passed through.
type UpstreamError struct {
	Op       string
	Status   int
	Response *http.Response
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d", e.Op, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Passthrough reports whether the upstream produced a response to forward.
func (e *UpstreamError) Passthrough() bool { return e.Response != nil }

// ConfigurationError is raised at startup, or for a rejected per-request override.
type ConfigurationError struct {
	Field  string
	Reason string
}

func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}
