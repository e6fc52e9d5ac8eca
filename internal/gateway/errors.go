package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned before dispatch for a malformed Request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCanceled is returned when a call was aborted before it settled.
	ErrCanceled = errors.New("request canceled")
	// ErrSuperseded is returned to a call replaced by a newer call to the
	// same endpoint. It matches ErrCanceled.
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer request to the same endpoint", ErrCanceled)
	// ErrUnauthorized marks a 401 response. The stored token has already been
	// cleared when a caller sees it.
	ErrUnauthorized = errors.New("unauthorized")
)

// DefaultAuthMessage is shown when a 401 response carries no message.
const DefaultAuthMessage = "Authentication failed. Please log in again."

// RequestError is the normalized failure of a backend call.
type RequestError struct {
	Method    string
	Endpoint  string
	Status    int // 0 when no response was received
	Message   string
	RequestID string
	Err       error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.Endpoint, e.Status, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err comes from an aborted call. Such failures
// are not shown to the user.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsUnauthorized reports whether err comes from a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var re *RequestError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsSuperseded reports whether err comes from a call replaced by a newer one
// to the same endpoint.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
