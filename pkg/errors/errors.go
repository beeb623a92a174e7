package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so wrapped clones still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrQueueFull    = New("QUEUE_UNAVAILABLE", http.StatusServiceUnavailable, "run queue unavailable")

	ErrMalformedEvent      = New("MALFORMED_EVENT", http.StatusUnprocessableEntity, "malformed event")
	ErrUnresolvedElement   = New("UNRESOLVED_ELEMENT", http.StatusUnprocessableEntity, "element not present in course model")
	ErrMalformedCourseTree = New("MALFORMED_COURSE_TREE", http.StatusUnprocessableEntity, "course tree start inheritance does not terminate")
	ErrMissingCourseModel  = New("MISSING_COURSE_MODEL", http.StatusNotFound, "no course model stored for run")
	ErrStorageWrite        = New("STORAGE_WRITE_FAILED", http.StatusBadGateway, "storage batch write failed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Wrapf attaches a cause and a formatted detail to a predefined error.
func Wrapf(base *Error, cause error, format string, args ...interface{}) *Error {
	detail := fmt.Sprintf(format, args...)
	return &Error{Code: base.Code, Status: base.Status, Message: base.Message + ": " + detail, Err: cause}
}
