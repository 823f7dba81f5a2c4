// Package errors defines unified error types for routing operations.
// All failures surfaced by the subsystem are mapped to these standard kinds.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a routing failure.
type Kind string

const (
	// KindCacheFailure is a cache tier I/O or (de)serialization error.
	// Cache failures are recovered locally and degrade to a miss; they are
	// recorded but never surfaced to callers.
	KindCacheFailure Kind = "cache_failure"

	// KindRoutingFailure means no candidate could be selected. Terminal:
	// no request can be served.
	KindRoutingFailure Kind = "routing_failure"

	// KindBackendFailure means the selected backend returned an error or
	// timed out. Recoverable via failover when enabled.
	KindBackendFailure Kind = "backend_failure"

	// KindTrackingMisuse is an unknown or duplicate tracking id. Logged as
	// a warning, never surfaced.
	KindTrackingMisuse Kind = "tracking_misuse"
)

// RouteError is a standardized error from the routing subsystem.
type RouteError struct {
	Kind      Kind   `json:"kind"`
	Model     string `json:"model,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"-"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s (model=%s): %v", e.Kind, e.Message, e.Model, e.Err)
	}
	return fmt.Sprintf("[%s] %s (model=%s)", e.Kind, e.Message, e.Model)
}

// Unwrap exposes the originating error for errors.Is/As.
func (e *RouteError) Unwrap() error {
	return e.Err
}

// NewRoutingError creates a terminal routing failure.
func NewRoutingError(message string, cause error) *RouteError {
	return &RouteError{
		Kind:      KindRoutingFailure,
		Message:   message,
		Retryable: false,
		Err:       cause,
	}
}

// NewBackendError creates a backend invocation failure for the given model.
// Backend failures are retryable via failover against remaining candidates.
func NewBackendError(model string, cause error) *RouteError {
	return &RouteError{
		Kind:      KindBackendFailure,
		Model:     model,
		Message:   "backend invocation failed",
		Retryable: true,
		Err:       cause,
	}
}

// NewCacheError wraps a cache tier failure. Never returned to callers;
// exists so cache internals can log and count a typed failure.
func NewCacheError(message string, cause error) *RouteError {
	return &RouteError{
		Kind:      KindCacheFailure,
		Message:   message,
		Retryable: false,
		Err:       cause,
	}
}

// IsRetryable reports whether err is a RouteError eligible for failover.
func IsRetryable(err error) bool {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// KindOf returns the Kind of err, or an empty Kind for foreign errors.
func KindOf(err error) Kind {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
