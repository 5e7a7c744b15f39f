package sanitize

import "regexp"

// Replacement placeholders.
const (
	IPPlaceholder         = "[IP_REDACTED]"
	OnionPlaceholder      = "[ONION_REDACTED]"
	ScriptPathPlaceholder = "[SCRIPT_PATH_REDACTED]"
	HeaderPlaceholder     = "[REDACTED]"
)

// Rule is a single pattern and its replacement.
// Replacement may reference capture groups using regexp.Expand syntax.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

var (
	ipRule = Rule{
		Pattern:     regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
		Replacement: IPPlaceholder,
	}
	longOnionRule = Rule{
		Pattern:     regexp.MustCompile(`(?i)[a-z0-9-]{16,}\.onion\b`),
		Replacement: OnionPlaceholder,
	}
	onionRule = Rule{
		Pattern:     regexp.MustCompile(`(?i)[a-z0-9-]+\.onion\b`),
		Replacement: OnionPlaceholder,
	}
	scriptPathRule = Rule{
		Pattern:     regexp.MustCompile(`(?i)/[a-z0-9/_-]+\.(php|sh|py|pl|rb|exe|bin)`),
		Replacement: ScriptPathPlaceholder,
	}
)

// headerRule redacts the value of an HTTP header up to the end of the line.
// The header name keeps its original spelling.
func headerRule(name string) Rule {
	return Rule{
		Pattern:     regexp.MustCompile(`(?i)(` + name + `): [^\n]+`),
		Replacement: "${1}: " + HeaderPlaceholder,
	}
}

// LogPatterns returns the rules applied to the daemon's own log lines.
func LogPatterns() []Rule {
	return []Rule{ipRule, onionRule}
}

// DefaultPatterns returns the full rule set used for rewriting log files.
// Order matters: addresses are replaced before script paths so that a URL
// such as http://x.onion/a.php loses both parts.
func DefaultPatterns() []Rule {
	return []Rule{
		ipRule,
		longOnionRule,
		onionRule,
		scriptPathRule,
		headerRule("User-Agent"),
		headerRule("Referer"),
		headerRule("Cookie"),
		headerRule("Authorization"),
	}
}
