package api

import (
	"errors"
	"fmt"
)

// ErrTimeout is wrapped into errors caused by a request exceeding its
// deadline.
var ErrTimeout = errors.New("request timed out")

// IsTimeout reports whether err (or any error in its chain) is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// AuthError indicates that the session token was rejected. It is returned
// when the server answers 401.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is returned for any non-2xx response other than 401.
type StatusError struct {
	Code    int
	Method  string
	Path    string
	Message string

	// Body is the raw response body, kept for callers that need to decode
	// a structured error payload.
	Body []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d) on %s %s: %s", e.Code, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.Code, e.Method, e.Path)
}

// StatusCode returns the HTTP status of err when it is a StatusError, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
