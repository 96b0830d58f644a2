// Package domainerrors provides coded domain errors for the verification
// workflow. Stores return sentinels (pkg/platform/sentinel); services wrap
// them into coded errors; the HTTP layer maps codes onto statuses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies a domain error class. Codes are part of the external
// contract: they appear verbatim in JSON error envelopes.
type Code string

const (
	// CodeValidation covers missing or malformed caller input. Field-level
	// detail is surfaced verbatim to the caller.
	CodeValidation Code = "validation_error"

	// CodeDuplicateSubmission signals an attempt to submit while a
	// non-terminal verification process already exists for the user.
	// Non-retryable.
	CodeDuplicateSubmission Code = "duplicate_active_submission"

	// CodeInvalidTransition signals a status transition not permitted from
	// the record's current status.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeConcurrentModification signals a lost optimistic-concurrency race.
	// The caller may re-read and retry the single operation.
	CodeConcurrentModification Code = "concurrent_modification"

	// CodeNotFound signals a missing record.
	CodeNotFound Code = "not_found"

	// CodeUnavailable signals a store or upstream adapter failure.
	CodeUnavailable Code = "upstream_unavailable"

	// CodeInternal is the opaque catch-all; detail is logged server-side only.
	CodeInternal Code = "internal_error"
)

// Error carries a code, a caller-safe message, and for validation errors the
// offending field names.
type Error struct {
	Code    Code
	Message string
	Fields  []string
	cause   error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewValidation constructs a validation error naming the offending fields.
func NewValidation(message string, fields ...string) *Error {
	return &Error{Code: CodeValidation, Message: message, Fields: fields}
}

// Wrap attaches a code and caller-safe message to an underlying error. The
// cause stays reachable through errors.Is/As for logging but is never
// serialized to callers.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// ToHTTPStatus maps a code onto its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeDuplicateSubmission, CodeInvalidTransition:
		return http.StatusConflict
	case CodeConcurrentModification:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
