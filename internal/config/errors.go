package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrEmptyControlAddress is returned when no control port address is set.
	ErrEmptyControlAddress = errors.New("control address must not be empty")

	// ErrEmptyWebRoot is returned when no directory to watch is set.
	ErrEmptyWebRoot = errors.New("web root must not be empty")

	// ErrInvalidThreshold is returned when a circuit threshold is not positive.
	ErrInvalidThreshold = errors.New("invalid circuit threshold: must be positive")

	// ErrInvalidCapacity is returned when the circuit history capacity cannot
	// hold a full minute window.
	ErrInvalidCapacity = errors.New("invalid history capacity: must exceed the per-minute threshold")

	// ErrInvalidDuration is returned when an interval, delay or timeout is
	// not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")

	// ErrInvalidAttempts is returned when the connect attempt count is below one.
	ErrInvalidAttempts = errors.New("invalid connect attempts: must be at least 1")

	// ErrInvalidWatchMode is returned for a watch mode other than auto, events or poll.
	ErrInvalidWatchMode = errors.New("invalid watch mode: must be auto, events or poll")

	// ErrInvalidRestartPolicy is returned when the restart budget or backoff is inconsistent.
	ErrInvalidRestartPolicy = errors.New("invalid restart policy")

	// ErrInvalidExtension is returned when a suspicious extension does not start with a dot.
	ErrInvalidExtension = errors.New("invalid suspicious extension: must start with '.'")
)
