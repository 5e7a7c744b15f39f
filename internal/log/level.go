package log

import (
	"log/slog"

	"github.com/nao1215/onionsentry/internal/model"
)

// LevelCritical marks attacks and high-risk file changes.
const LevelCritical = slog.LevelError + 4

// LevelFor maps a change severity to the level it is logged at.
func LevelFor(s model.Severity) slog.Level {
	switch s {
	case model.SeverityCritical:
		return LevelCritical
	case model.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// replaceLevel renders LevelCritical as "CRITICAL" instead of "ERROR+4".
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelCritical {
		return slog.String(slog.LevelKey, "CRITICAL")
	}
	return a
}
