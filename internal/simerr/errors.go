// Package simerr defines the error taxonomy shared by the simulation core.
package simerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap them with the constructors below and test with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrRepository = errors.New("repository failure")
)

// Validation reports an invalid target or malformed request.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict reports a duplicate active record or an illegal state transition.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFound reports a missing agent, faction, arc or other entity.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Repository wraps a storage failure. The cause stays reachable through errors.Unwrap chains.
func Repository(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRepository, op, err)
}

// Kind returns the sentinel an error was built from, or nil when it is unclassified.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrRepository} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
