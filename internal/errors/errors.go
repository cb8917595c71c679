// Package errors defines the typed error taxonomy shared by services and
// handlers. Every DomainError carries a Kind that maps to an HTTP status and a
// stable machine-readable Code.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a DomainError.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimit
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimit:
		return "rate_limit"
	case KindExternalService:
		return "external_service"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainError is the error type returned by business operations.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel compare equal to it.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Retryable reports whether the caller may retry the same request.
func (e *DomainError) Retryable() bool {
	return e.Kind == KindExternalService
}

// Wrap returns a copy of e carrying cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *DomainError) WithMessage(format string, args ...interface{}) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// Conflict builds a 409 error.
func Conflict(code, message string) *DomainError {
	return newError(KindConflict, code, message)
}

// Generic errors used across domains.
var (
	ErrUnauthenticated = newError(KindAuthentication, "UNAUTHENTICATED", "authentication required")
	ErrForbidden       = newError(KindAuthorization, "FORBIDDEN", "insufficient permissions")
	ErrRateLimited     = newError(KindRateLimit, "RATE_LIMITED", "too many requests, please try again later")
	ErrExternalService = newError(KindExternalService, "SERVICE_UNAVAILABLE", "a dependent service is unavailable, please retry")
	ErrInternal        = newError(KindInternal, "INTERNAL_ERROR", "internal server error")
	ErrInvalidRequest  = newError(KindValidation, "INVALID_REQUEST", "invalid request format")
)

// As extracts a *DomainError from err.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if de, ok := As(err); ok {
		return de.Kind
	}
	return KindInternal
}

// FromStore classifies an error coming back from persistence or the identity
// adapter. Timeouts and cancellations become retryable ExternalService errors,
// domain errors pass through, everything else is Internal.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return ErrExternalService.Wrap(err)
	}
	return ErrInternal.Wrap(err)
}
