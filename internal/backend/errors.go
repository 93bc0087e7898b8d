package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for backend calls.
var (
	// ErrUnauthorized indicates missing, invalid or expired credentials (401/403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates the backend has no such resource (404).
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest indicates the backend rejected the input (other 4xx).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnavailable indicates the backend is unreachable, failing, or shedding load.
	ErrUnavailable = errors.New("backend unavailable")
)

// Error describes a failed backend call. Message is the backend's own wording when it
// sent one, so it can be shown to the user.
type Error struct {
	Op         string // client operation, e.g. "login"
	StatusCode int    // HTTP status, 0 when no response was received
	Message    string
	Err        error // one of the sentinel errors above
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.StatusCode != 0 {
		msg = http.StatusText(e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: %d %s", e.Op, e.StatusCode, msg)
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("backend %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the failure is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrUnavailable)
}

// UserMessage returns the backend message or a generic fallback for the status.
func (e *Error) UserMessage(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// classify maps an HTTP status to a sentinel error.
func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrUnavailable
	default:
		return ErrInvalidRequest
	}
}
