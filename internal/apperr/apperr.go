// Package apperr provides the typed error vocabulary shared by every
// component of the induction core (§7 of the specification).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a closed enumeration of the error kinds the core can surface.
// Callers should switch on Kind, never on error string content.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindStoreUnavailable  Kind = "store_unavailable"
	KindNoEligible        Kind = "no_eligible_trainsets"
	KindContextEmpty      Kind = "context_empty"
	KindCancelled         Kind = "cancelled_by_caller"
	KindTimedOut          Kind = "timed_out"
	KindInternal          Kind = "internal"
	KindSubscriptionSlow  Kind = "subscription_slow"
)

// statusByKind maps each Kind to the HTTP status code the Command
// Surface's wire binding should use.
var statusByKind = map[Kind]int{
	KindValidation:       http.StatusBadRequest,
	KindNotFound:         http.StatusNotFound,
	KindConflict:         http.StatusConflict,
	KindStoreUnavailable: http.StatusServiceUnavailable,
	KindNoEligible:       http.StatusUnprocessableEntity,
	KindContextEmpty:     http.StatusUnprocessableEntity,
	KindCancelled:        http.StatusConflict,
	KindTimedOut:         http.StatusGatewayTimeout,
	KindInternal:         http.StatusInternalServerError,
	KindSubscriptionSlow: http.StatusTooManyRequests,
}

// Error is the structured error type returned across package boundaries.
// It carries a correlation id so operators can tie a log line to a
// specific failed command (§7 "InternalError with a diagnostic code and
// a correlation id").
type Error struct {
	Kind          Kind
	Message       string
	Details       string
	CorrelationID string
	Cause         error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode returns the HTTP status code for this error's Kind.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that wraps a lower-level cause.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails attaches additional, non-sensitive context and returns
// the same error (mutates in place, mirroring the teacher's chained
// builder idiom).
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithCorrelationID attaches the correlation id used to join this
// error to its originating log lines.
func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
