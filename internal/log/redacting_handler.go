package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nao1215/onionsentry/internal/sanitize"
)

// MaskValue replaces values of sensitive attributes.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys whose values are never logged.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"password":            true,
	"passwd":              true,
	"control_password":    true,
	"secret":              true,
	"token":               true,
	"session":             true,
	"session_id":          true,
	"auth_cookie":         true,
	"private_key":         true,
}

// sensitiveKeywords mark a key as sensitive when contained anywhere in it.
// The bare word "key" is not listed; it matches too many harmless names.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "private",
}

// sensitivePatterns match values that are key material whatever their key.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
	regexp.MustCompile(`== ed25519v1-secret:`),
	regexp.MustCompile(`(?i)^16:[0-9a-f]{58}$`), // HashedControlPassword
}

// RedactingHandler wraps an slog.Handler and scrubs each record before
// passing it on.
//
// Design decision: redaction lives in a handler rather than at call sites
// so that third-party code logging through the same *slog.Logger (tornago)
// is covered as well.
type RedactingHandler struct {
	handler slog.Handler
	rules   []sanitize.Rule
}

// NewRedactingHandler wraps handler. When redact is false only sensitive
// keys and values are masked; addresses pass through untouched.
// A nil handler falls back to slog.Default().Handler().
func NewRedactingHandler(handler slog.Handler, redact bool) *RedactingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	h := &RedactingHandler{handler: handler}
	if redact {
		h.rules = sanitize.LogPatterns()
	}
	return h
}

// Enabled delegates to the wrapped handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle scrubs the message and attributes and forwards the record.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.scrub(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrubAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

// WithAttrs scrubs attrs before attaching them.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.scrubAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(scrubbed), rules: h.rules}
}

// WithGroup returns a handler that nests further attributes under name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name), rules: h.rules}
}

func (h *RedactingHandler) scrub(s string) string {
	for _, rule := range h.rules {
		s = rule.Pattern.ReplaceAllString(s, rule.Replacement)
	}
	return s
}

func (h *RedactingHandler) scrubAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		scrubbed := make([]slog.Attr, len(group))
		for i, ga := range group {
			scrubbed[i] = h.scrubAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubbed...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if isSensitiveValue(v) {
			return slog.String(a.Key, MaskValue)
		}
		return slog.String(a.Key, h.scrub(v))
	case slog.KindAny:
		// Dial errors carry the peer address in their text.
		if err, ok := a.Value.Any().(error); ok && len(h.rules) > 0 {
			return slog.String(a.Key, h.scrub(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, word := range sensitiveKeywords {
		if strings.Contains(k, word) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// NewRedactingLogger returns a text logger writing to w.
// The level is Info, or Debug when verbose is set.
func NewRedactingLogger(w io.Writer, verbose, redact bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	text := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	})
	return slog.New(NewRedactingHandler(text, redact))
}
