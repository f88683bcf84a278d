package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// RouterError represents a pipeline error that can be returned to clients.
// Filters reject requests by returning one; the pipeline writes its status
// code and message as the response and stops processing.
type RouterError struct {
	Code       int
	Message    string
	underlying error
}

func (e *RouterError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *RouterError) Unwrap() error {
	return e.underlying
}

// Write writes the error as a plain-text response. Only the message is sent
// to the client; the underlying cause stays server-side.
func (e *RouterError) Write(w http.ResponseWriter) {
	body := []byte(e.Message)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(e.Code)
	w.Write(body)
}

// Common errors
var (
	ErrBadRequest = &RouterError{
		Code:    http.StatusBadRequest,
		Message: "Bad Request",
	}

	ErrUnauthorized = &RouterError{
		Code:    http.StatusUnauthorized,
		Message: "Unauthorized",
	}

	ErrForbidden = &RouterError{
		Code:    http.StatusForbidden,
		Message: "Forbidden",
	}

	ErrNotFound = &RouterError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrInternalServer = &RouterError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}
)

// New creates a new RouterError
func New(code int, message string) *RouterError {
	return &RouterError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new RouterError with a formatted message
func Newf(code int, format string, args ...any) *RouterError {
	return &RouterError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a client-facing status and message
func Wrap(err error, code int, message string) *RouterError {
	return &RouterError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// AsRouterError checks if an error is (or wraps) a RouterError
func AsRouterError(err error) (*RouterError, bool) {
	var re *RouterError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
