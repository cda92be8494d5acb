package controller

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNoBaseURL is returned when the client has no controller URL.
	ErrNoBaseURL = errors.New("controller: base URL required")

	// ErrBadAnswer is returned when the controller's answer cannot be decoded.
	ErrBadAnswer = errors.New("controller: malformed answer")
)

// APIError is a non-2xx response from the controller.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Path is the endpoint that was called.
	Path string

	// Message is the response body or status text.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("controller %s: status %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("controller %s: status %d", e.Path, e.StatusCode)
}

// IsServerError reports a 5xx response. The reference controller answers 500
// to commands sent before the drone is connected.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsAPIError reports whether err carries an *APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
