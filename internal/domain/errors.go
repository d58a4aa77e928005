package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the closed error taxonomy. Every error that crosses a
// package boundary wraps exactly one of these.
var (
	ErrInternal        = errors.New("internal error")
	ErrDatabase        = errors.New("database error")
	ErrBadRequest      = errors.New("invalid request")
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("resource already exists")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrRateLimited     = errors.New("rate limited")
)

// Error carries a sentinel plus the human-readable message served to clients.
type Error struct {
	Err        error
	Message    string
	Details    any
	RetryAfter time.Duration // set only when Err is ErrRateLimited
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Internal(message string) *Error {
	return &Error{Err: ErrInternal, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Err: ErrNotFound, Message: message}
}

func BadRequest(message string) *Error {
	return &Error{Err: ErrBadRequest, Message: message}
}

func BadRequestf(format string, args ...any) *Error {
	return &Error{Err: ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(message string) *Error {
	return &Error{Err: ErrUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Err: ErrForbidden, Message: message}
}

func Forbiddenf(format string, args ...any) *Error {
	return &Error{Err: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(message string) *Error {
	return &Error{Err: ErrConflict, Message: message}
}

func PayloadTooLarge(message string) *Error {
	return &Error{Err: ErrPayloadTooLarge, Message: message}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Err: ErrRateLimited, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

// WithDetails attaches structured detail to the error, returned to clients
// under error.details.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}
