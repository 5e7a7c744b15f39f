package model

import "time"

// Outcome is the result of a defense trigger attempt.
type Outcome int

const (
	// OutcomeTriggered means the new identity signal was delivered.
	OutcomeTriggered Outcome = iota

	// OutcomeRateLimited means the cooldown suppressed the trigger.
	// This is a policy outcome, not an error.
	OutcomeRateLimited

	// OutcomeFailed means the control channel could not be reached or
	// rejected the signal.
	OutcomeFailed
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeTriggered:
		return "triggered"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseOutcome converts an outcome name back into an Outcome.
func ParseOutcome(name string) (Outcome, bool) {
	for _, o := range AllOutcomes() {
		if o.String() == name {
			return o, true
		}
	}
	return OutcomeFailed, false
}

// AllOutcomes returns every outcome in declaration order.
func AllOutcomes() []Outcome {
	return []Outcome{OutcomeTriggered, OutcomeRateLimited, OutcomeFailed}
}

// Window identifies which sliding window detected an attack.
type Window int

const (
	// WindowMinute is the 60-second sustained-rate window.
	WindowMinute Window = iota

	// WindowBurst is the 10-second burst window.
	WindowBurst
)

// String returns the short name of the window.
func (w Window) String() string {
	switch w {
	case WindowMinute:
		return "1min"
	case WindowBurst:
		return "10sec"
	default:
		return "unknown"
	}
}

// ParseWindow converts a window name back into a Window.
func ParseWindow(name string) (Window, bool) {
	switch name {
	case "1min":
		return WindowMinute, true
	case "10sec":
		return WindowBurst, true
	default:
		return WindowMinute, false
	}
}

// Detection describes a threshold crossing found by the rate analyzer.
type Detection struct {
	// Window is the window whose threshold was exceeded.
	Window Window `json:"window"`

	// Observed is the number of circuit builds counted in the window.
	Observed int `json:"observed"`

	// Threshold is the configured maximum for the window.
	Threshold int `json:"threshold"`

	// At is when the crossing was evaluated.
	At time.Time `json:"at"`
}

// DefenseEvent is a detection together with what the actuator did about it.
type DefenseEvent struct {
	Detection

	// Outcome is the actuator result.
	Outcome Outcome `json:"outcome"`

	// Error is the failure message when Outcome is OutcomeFailed.
	Error string `json:"error,omitempty"`
}
