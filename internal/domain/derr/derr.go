// Package derr defines the error taxonomy shared by the payment pipeline and race resolution.
package derr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPaymentConflict means the transaction id was already consumed by another action.
	ErrPaymentConflict = errors.New("payment already consumed")
	// ErrConcurrencyPending means another caller holds the execution or resolution lock.
	ErrConcurrencyPending = errors.New("operation in progress")
	// ErrExternalDegraded means the chain indexer could not be reached.
	ErrExternalDegraded = errors.New("chain query degraded")
	// ErrExecutionFailure means an executor failed after the payment was confirmed.
	ErrExecutionFailure = errors.New("execution failed")
	// ErrInsufficientEntrants means a race was cancelled for lack of competitors.
	ErrInsufficientEntrants = errors.New("insufficient entrants")
	// ErrStuckLock means a race is locked without a live resolver.
	ErrStuckLock = errors.New("race resolution lock held")
)

// ValidationError names the precondition a request violated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Invalidf builds a ValidationError with a formatted reason.
func Invalidf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
