// Package apperr defines the error kinds surfaced by the ingestion and query
// pipelines, and how transports should report them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers.
type Kind string

const (
	// KindValidation is bad caller input. Generation failures are reported here too.
	KindValidation Kind = "VALIDATION"
	// KindFile is an unreadable or unsupported upload.
	KindFile Kind = "FILE"
	// KindConflict is a duplicate document for the same user.
	KindConflict Kind = "CONFLICT"
	// KindNotFound is a missing or foreign document.
	KindNotFound Kind = "NOT_FOUND"
	// KindStorage is a persistence or model-service failure.
	KindStorage Kind = "STORAGE"
	// KindUnavailable is an optional dependency that could not be reached.
	KindUnavailable Kind = "UNAVAILABLE"
	// KindInternal is anything not classified above.
	KindInternal Kind = "INTERNAL"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind   // Classification used by transports
	Op      string // Operation that failed (e.g. "ingest.extract")
	Message string // Message safe to show to the caller
	Err     error  // Underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func Validation(op, message string) *Error { return New(KindValidation, op, message, nil) }

func File(op, message string, err error) *Error { return New(KindFile, op, message, err) }

func Conflict(op, message string) *Error { return New(KindConflict, op, message, nil) }

func NotFound(op, message string, err error) *Error { return New(KindNotFound, op, message, err) }

func Storage(op, message string, err error) *Error { return New(KindStorage, op, message, err) }

func Unavailable(op, message string, err error) *Error { return New(KindUnavailable, op, message, err) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindFile:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
