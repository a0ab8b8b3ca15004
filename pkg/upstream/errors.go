package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned when a breaker rejects a call.
	ErrCircuitOpen = errors.New("upstream circuit open")

	// ErrMalformedResponse is returned when a 2xx body lacks required fields.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	// Endpoint names the call, e.g. "create_chat".
	Endpoint string

	// StatusCode is the HTTP status.
	StatusCode int

	// Body is the beginning of the response body.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
