// Package apperror defines the error taxonomy shared by all domain services
// and the mapping from those errors to HTTP status codes at the transport
// edge. Services wrap the sentinels with context via fmt.Errorf and %w;
// handlers match with errors.Is.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden marks an authorization failure (role, participant or
	// admin check).
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a referenced entity that is absent or not owned by
	// the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks exclusive-resource contention, e.g. a screen-share
	// slot already held by another participant.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState marks an operation that is not valid for the entity's
	// current lifecycle state, e.g. joining an ended call.
	ErrInvalidState = errors.New("invalid state")
	// ErrInternal marks an unexpected failure; the detail is logged, a
	// generic message is surfaced to the caller.
	ErrInternal = errors.New("internal error")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrForbidden}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConflict}, args...)...)
}

// InvalidStatef wraps ErrInvalidState with a formatted message.
func InvalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidState}, args...)...)
}

// Internalf wraps ErrInternal with a formatted message.
func Internalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInternal}, args...)...)
}

// HTTPStatus maps a service error to the HTTP status code handlers should
// respond with. Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the error text safe to surface to the caller. Internal and
// unrecognized errors collapse to a generic message.
func Message(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
