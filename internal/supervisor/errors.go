package supervisor

import "errors"

var (
	// ErrUnitPanicked wraps the value recovered from a panicking unit.
	ErrUnitPanicked = errors.New("unit panicked")

	// ErrShutdownTimeout is returned by Run when units do not stop within
	// the shutdown timeout.
	ErrShutdownTimeout = errors.New("units did not stop before the shutdown timeout")
)
