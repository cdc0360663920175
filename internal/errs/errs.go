// Package errs defines the engine's error taxonomy. State machines return
// these so callers can tell terminal business outcomes (insufficient funds,
// already processed) apart from transient infrastructure failures.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds means a spend guard failed. Never retried with a
	// smaller amount; always surfaced to the caller.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyProcessed means a status-guarded transition affected zero
	// rows: someone else won the race. Terminal, not retryable.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrRateUnavailable means the price oracle had no usable price for a
	// leg. The whole operation fails closed.
	ErrRateUnavailable = errors.New("rate unavailable")

	// ErrDataIntegrity marks an adjustment sanity-check mismatch. Must be
	// loud in operator logs and never shown with detail to end users.
	ErrDataIntegrity = errors.New("data integrity violation")

	ErrNotFound = errors.New("not found")
)

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

// Validation builds a malformed-input error that IsValidation recognizes.
func Validation(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *validationError
	return errors.As(err, &v)
}
