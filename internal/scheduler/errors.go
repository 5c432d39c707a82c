package scheduler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ModelNotSupportedError is returned when no configuration could ever serve
// the requested model, regardless of load.
type ModelNotSupportedError struct {
	Model               string
	MissingCapabilities []string
}

// Error implements the error interface.
func (e *ModelNotSupportedError) Error() string {
	if len(e.MissingCapabilities) > 0 {
		return fmt.Sprintf(
			"model %q does not support required capabilities: %s",
			e.Model, strings.Join(e.MissingCapabilities, ", "),
		)
	}
	return fmt.Sprintf("model %q is not supported", e.Model)
}

// StatusCode returns the HTTP status for the error.
func (e *ModelNotSupportedError) StatusCode() int { return http.StatusNotFound }

// Headers returns extra response headers for the error.
func (e *ModelNotSupportedError) Headers() map[string]string { return nil }

// SkippedCandidate records why one combination was rejected, for error
// responses and diagnostics.
type SkippedCandidate struct {
	ProviderName string `json:"provider"`
	EndpointID   uint64 `json:"endpoint_id"`
	KeyID        uint64 `json:"key_id"`
	Reason       string `json:"reason"`
}

// ProviderNotAvailableError is returned when the model exists but every
// combination is excluded, unhealthy or saturated right now.
type ProviderNotAvailableError struct {
	Model      string
	RetryAfter time.Duration
	Skipped    []SkippedCandidate
}

// Error implements the error interface.
func (e *ProviderNotAvailableError) Error() string {
	if len(e.Skipped) == 0 {
		return fmt.Sprintf("no provider available for model %q", e.Model)
	}
	return fmt.Sprintf(
		"no provider available for model %q (%d combinations rejected)",
		e.Model, len(e.Skipped),
	)
}

// StatusCode returns the HTTP status for the error.
func (e *ProviderNotAvailableError) StatusCode() int { return http.StatusServiceUnavailable }

// Headers returns extra response headers for the error.
func (e *ProviderNotAvailableError) Headers() map[string]string {
	retryAfter := e.RetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	seconds := int(retryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return map[string]string{"Retry-After": strconv.Itoa(seconds)}
}
