package model

import "strings"

// Severity represents the risk level of a detected change or finding.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons and sorting. The String() method provides
// human-readable output when needed.
type Severity int

const (
	// SeverityNotice indicates a change worth recording but not alarming.
	// Examples: a removed file, a modified static asset.
	SeverityNotice Severity = iota

	// SeverityWarning indicates a change that warrants operator attention.
	// Examples: a new static file appearing in the web root.
	SeverityWarning

	// SeverityCritical indicates a change that likely means compromise.
	// Examples: a new or modified script or executable in the web root.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a severity name back into a Severity.
// Matching is case-insensitive. Unknown names report false.
func ParseSeverity(name string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NOTICE":
		return SeverityNotice, true
	case "WARNING":
		return SeverityWarning, true
	case "CRITICAL":
		return SeverityCritical, true
	default:
		return SeverityNotice, false
	}
}

// AllSeverities returns every severity from most to least severe.
// Report writers use this to print summaries in a stable order.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityWarning, SeverityNotice}
}
