package store

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by store operations. Callers branch with errors.Is.
var (
	// ErrValidation indicates a malformed argument (bad kind, score out of
	// range, empty required field).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced record, document, entry, or
	// identity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSealed indicates a write against an archive entry that has already
	// been sealed.
	ErrSealed = errors.New("entry sealed")

	// ErrUnavailable indicates the backing database could not serve the
	// operation.
	ErrUnavailable = errors.New("store unavailable")

	// ErrUnknownField indicates a continuity profile write outside the
	// configured field set. It also matches ErrValidation under errors.Is.
	ErrUnknownField = fmt.Errorf("unknown profile field: %w", ErrValidation)
)

// unavailable tags a low-level database failure so callers can distinguish
// infrastructure faults from domain errors.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
