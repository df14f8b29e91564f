// Package apperr defines the error taxonomy shared by the gateway and the
// storage layer. Handlers classify with errors.Is and map each class to a
// client-visible envelope code; anything unclassified is treated as a
// persistence failure and collapsed to a generic internal error.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrPersistence    = errors.New("persistence failure")
)

// NotFound wraps ErrNotFound with the missing entity's name and id.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// Validation wraps ErrValidation with a caller-facing reason.
func Validation(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrValidation)
}

// Persistence wraps a database error so callers can classify it without
// depending on driver error types.
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrPersistence)
}

// Code maps an error class to the HTTP-style status carried in the socket
// envelope.
func Code(err error) int {
	switch {
	case errors.Is(err, ErrAuthentication):
		return 401
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrValidation):
		return 422
	default:
		return 500
	}
}
