package model

import "time"

// AuditResult is the result of a single privacy posture check.
type AuditResult struct {
	// Check is the short identifier of the check (e.g. "safe_logging").
	Check string `json:"check"`

	// OK reports whether the check passed.
	OK bool `json:"ok"`

	// Detail is a human-readable explanation. It must not contain
	// identifying values such as onion addresses.
	Detail string `json:"detail"`

	// At is when the check ran.
	At time.Time `json:"at"`
}

// Result returns "pass" or "fail" for metric labels and reports.
func (r AuditResult) Result() string {
	if r.OK {
		return "pass"
	}
	return "fail"
}
