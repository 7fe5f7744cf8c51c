package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the conceptual class of an error crossing a component boundary
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindCancelled           Kind = "cancelled"
	KindInternal            Kind = "internal"
)

// Error carries a machine code, a human message and optional structured
// context. Human messages stay short; presentation-layer translation is not
// the core's job.
type Error struct {
	Kind     Kind           `json:"kind"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message"`
	Field    string         `json:"field,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	WaitHint time.Duration  `json:"wait_hint,omitempty"`
	cause    error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithField tags the offending input field
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetail adds one structured detail entry
func (e *Error) WithDetail(key string, val any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = val
	return e
}

// New creates an error of the given kind
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validationf creates a validation error
func Validationf(code, format string, args ...any) *Error {
	return New(KindValidation, code, fmt.Sprintf(format, args...))
}

// NotFoundf creates a not_found error
func NotFoundf(code, format string, args ...any) *Error {
	return New(KindNotFound, code, fmt.Sprintf(format, args...))
}

// Conflictf creates a conflict error
func Conflictf(code, format string, args ...any) *Error {
	return New(KindConflict, code, fmt.Sprintf(format, args...))
}

// RateLimited creates a rate_limited error with a wait hint
func RateLimited(code, message string, wait time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Code: code, Message: message, WaitHint: wait}
}

// Upstreamf creates an upstream_unavailable error
func Upstreamf(code, format string, args ...any) *Error {
	return New(KindUpstreamUnavailable, code, fmt.Sprintf(format, args...))
}

// Internalf creates an internal error
func Internalf(code, format string, args ...any) *Error {
	return New(KindInternal, code, fmt.Sprintf(format, args...))
}

// KindOf classifies any error; plain errors map to internal
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// AsError extracts an *Error or wraps err as internal
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internalf("internal_error", "%s", err.Error()).WithCause(err)
}

// HTTPStatus maps an error kind to the status code used by the API layer
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindBudgetExceeded, KindCancelled:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
