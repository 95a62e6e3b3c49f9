package controller

import (
	"errors"
	"fmt"
)

// fatalError marks a failure that must terminate the process instead of
// being absorbed by the next reconciliation. The surrounding orchestrator
// restarts the controller.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal builds a fatal error from a format string and its arguments.
func Fatal(format string, args ...any) error {
	return &fatalError{err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether any error in the chain is fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
