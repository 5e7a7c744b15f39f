// Package log builds the daemon's slog logger.
//
// Every record passes through a RedactingHandler before it reaches the
// text handler. The handler does two things:
//   - when redaction is on, IPv4 addresses and onion hostnames in the
//     message and in string attributes are replaced with placeholders
//     (see sanitize.LogPatterns)
//   - attributes whose key names a secret (cookie, password, token...) or
//     whose value looks like key material are always masked
//
// The package also defines LevelCritical, a level above slog.LevelError
// used for attacks and suspicious file changes, and LevelFor which maps a
// model.Severity onto a slog level.
//
// # Usage
//
//	logger := log.NewRedactingLogger(os.Stderr, verbose, true)
//	logger.Log(ctx, log.LevelCritical, "attack detected", "window", "1min")
//
// The returned logger can be handed to tornago and to any component that
// accepts *slog.Logger.
package log
