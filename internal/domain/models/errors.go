package models

import (
	"errors"
	"fmt"
)

// Recoverable errors degrade one signal for a cycle; ErrInvalidStateTransition aborts it.
var (
	ErrInsufficientData       = errors.New("insufficient data")
	ErrDivisionByZero         = errors.New("division by zero")
	ErrInsufficientHistory    = errors.New("insufficient history")
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// InvalidStateTransitionError carries the offending persisted state.
type InvalidStateTransitionError struct {
	State Position
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: unknown position %q", string(e.State))
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// IsRecoverable reports whether err only degrades a single signal.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrDivisionByZero) ||
		errors.Is(err, ErrInsufficientHistory)
}
