package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an API facing failure. Code is stable for clients, Status is the
// HTTP status and Retryable marks failures worth retrying unchanged.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error with the same code, so copies made by Clone or Wrap
// still satisfy errors.Is against the sentinel they came from.
func (e *Error) Is(target error) bool {
	var t *Error
	if e == nil || !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Wrap copies e with a new message and an underlying cause.
func (e *Error) Wrap(cause error, message string) *Error {
	out := Clone(e, message)
	if out != nil {
		out.Err = cause
	}
	return out
}

// New declares a sentinel.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func retryable(e *Error) *Error {
	e.Retryable = true
	return e
}

var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrInvalidRange       = New("INVALID_RANGE", http.StatusBadRequest, "invalid date range")
	ErrInvalidTransition  = New("INVALID_TRANSITION", http.StatusConflict, "invalid drill-down transition")
	ErrUpstreamFetch      = retryable(New("UPSTREAM_FETCH_ERROR", http.StatusBadGateway, "failed to load engagement records"))
	ErrServiceUnavailable = retryable(New("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service unavailable"))
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError returns err as an *Error, treating anything untyped as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.Wrap(err, ErrInternal.Message)
}

// Clone copies err, replacing the message when one is given.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	out := *err
	if message != "" {
		out.Message = message
	}
	return &out
}
