package integrity

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/nao1215/onionsentry/internal/log"
	"github.com/nao1215/onionsentry/internal/model"
)

// Watch modes.
const (
	// ModeAuto uses filesystem notifications and falls back to polling
	// quietly when they are unavailable.
	ModeAuto = "auto"

	// ModeEvents is ModeAuto with the fallback logged as a warning.
	ModeEvents = "events"

	// ModePoll only polls.
	ModePoll = "poll"
)

// Monitor watches the web root and reports every change.
type Monitor struct {
	scanner       *Scanner
	mode          string
	settle        time.Duration
	pollInterval  time.Duration
	primary       Strategy
	fallback      Strategy
	checkMetadata bool
	observers     []func(model.Change)
	changes       atomic.Int64
	logger        *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMode selects auto, events or poll. Unknown modes behave like auto.
func WithMode(mode string) MonitorOption {
	return func(m *Monitor) {
		m.mode = mode
	}
}

// WithWatchTiming sets the event settle delay and the poll interval.
func WithWatchTiming(settle, pollInterval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.settle = settle
		m.pollInterval = pollInterval
	}
}

// WithStrategies replaces the strategies chosen by the mode.
// fallback may be nil.
func WithStrategies(primary, fallback Strategy) MonitorOption {
	return func(m *Monitor) {
		m.primary = primary
		m.fallback = fallback
	}
}

// WithMetadataCheck enables the EXIF check on added and modified images.
func WithMetadataCheck(enabled bool) MonitorOption {
	return func(m *Monitor) {
		m.checkMetadata = enabled
	}
}

// WithChangeObserver registers fn to be called for every change.
func WithChangeObserver(fn func(model.Change)) MonitorOption {
	return func(m *Monitor) {
		m.observers = append(m.observers, fn)
	}
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a Monitor over the scanner's root.
func NewMonitor(scanner *Scanner, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		scanner:      scanner,
		mode:         ModeAuto,
		settle:       DefaultSettleDelay,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.primary == nil {
		poll := NewPollWatcher(scanner, m.pollInterval, m.logger)
		if m.mode == ModePoll {
			m.primary = poll
		} else {
			m.primary = NewEventWatcher(scanner, WithSettleDelay(m.settle), WithEventLogger(m.logger))
			m.fallback = poll
		}
	}
	return m
}

// Run watches until ctx is cancelled.
// ErrNotificationUnavailable from the primary strategy switches to the
// fallback instead of being returned.
func (m *Monitor) Run(ctx context.Context) error {
	handle := func(cs model.ChangeSet) { m.handle(ctx, cs) }

	err := m.primary.Watch(ctx, handle)
	if err == nil || m.fallback == nil || !errors.Is(err, ErrNotificationUnavailable) {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	level := slog.LevelInfo
	if m.mode == ModeEvents {
		level = slog.LevelWarn
	}
	m.logger.Log(ctx, level, "switching integrity watch to polling",
		"from", m.primary.Name(), "to", m.fallback.Name(), "error", err)

	return m.fallback.Watch(ctx, handle)
}

// Changes returns the number of changes reported since start.
func (m *Monitor) Changes() int64 {
	return m.changes.Load()
}

func (m *Monitor) handle(ctx context.Context, cs model.ChangeSet) {
	m.logger.InfoContext(ctx, "integrity changes detected",
		"added", len(cs.Added), "removed", len(cs.Removed), "modified", len(cs.Modified))

	for _, c := range cs.All() {
		m.changes.Add(1)
		m.logger.Log(ctx, log.LevelFor(c.Severity), changeTitle(c.Kind),
			"file", filepath.Base(c.Path),
			"ext", filepath.Ext(c.Path),
			"severity", c.Severity.String())

		for _, fn := range m.observers {
			fn(c)
		}

		if m.checkMetadata && c.Kind != model.ChangeRemoved && IsImage(c.Path) {
			m.inspectImage(ctx, c.Path)
		}
	}
}

func (m *Monitor) inspectImage(ctx context.Context, path string) {
	findings, err := CheckImageMetadata(path)
	if err != nil {
		m.logger.DebugContext(ctx, "image metadata check failed", "file", filepath.Base(path), "error", err)
		return
	}
	for _, f := range findings {
		m.logger.Log(ctx, log.LevelFor(f.Severity), "IDENTIFYING IMAGE METADATA",
			"file", filepath.Base(path), "tag", f.Tag)
	}
}

func changeTitle(kind model.ChangeKind) string {
	switch kind {
	case model.ChangeAdded:
		return "FILE ADDED"
	case model.ChangeRemoved:
		return "FILE REMOVED"
	default:
		return "FILE MODIFIED"
	}
}
