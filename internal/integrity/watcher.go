package integrity

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nao1215/onionsentry/internal/model"
)

// Watcher defaults.
const (
	DefaultSettleDelay  = 500 * time.Millisecond
	DefaultPollInterval = 5 * time.Second
)

// Strategy decides when the tree is rescanned.
// Watch seeds a snapshot, then calls onChange with every non-empty
// ChangeSet until ctx is cancelled. It returns nil on cancellation.
type Strategy interface {
	Name() string
	Watch(ctx context.Context, onChange func(model.ChangeSet)) error
}

// EventWatcher rescans after filesystem notifications.
// Bursts of events are coalesced: after the first event the watcher waits
// for the settle delay, absorbing further events, then rescans once.
type EventWatcher struct {
	scanner    *Scanner
	settle     time.Duration
	newWatcher func() (*fsnotify.Watcher, error)
	logger     *slog.Logger
}

// EventOption configures an EventWatcher.
type EventOption func(*EventWatcher)

// WithSettleDelay sets the coalescing delay.
func WithSettleDelay(d time.Duration) EventOption {
	return func(w *EventWatcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithEventLogger sets the logger.
func WithEventLogger(logger *slog.Logger) EventOption {
	return func(w *EventWatcher) {
		w.logger = logger
	}
}

// NewEventWatcher creates an EventWatcher for the scanner's root.
func NewEventWatcher(scanner *Scanner, opts ...EventOption) *EventWatcher {
	w := &EventWatcher{
		scanner:    scanner,
		settle:     DefaultSettleDelay,
		newWatcher: fsnotify.NewWatcher,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Name returns "events".
func (w *EventWatcher) Name() string {
	return ModeEvents
}

// Watch implements Strategy.
// It returns ErrNotificationUnavailable when the notifier cannot be created,
// the root cannot be watched or the event stream closes.
func (w *EventWatcher) Watch(ctx context.Context, onChange func(model.ChangeSet)) error {
	fw, err := w.newWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationUnavailable, err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.scanner.Root()); err != nil {
		return fmt.Errorf("%w: %w", ErrNotificationUnavailable, err)
	}

	snapshot := w.scanner.Scan()
	w.logger.Info("integrity baseline established", "mode", w.Name(), "files", len(snapshot))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("%w: error stream closed", ErrNotificationUnavailable)
			}
			w.logger.Warn("filesystem notification error", "error", err)
		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("%w: event stream closed", ErrNotificationUnavailable)
			}
			if !w.relevant(fw, ev) {
				continue
			}
			if !w.settleEvents(ctx, fw) {
				return nil
			}

			current := w.scanner.Scan()
			if cs := w.scanner.Diff(snapshot, current); !cs.IsEmpty() {
				onChange(cs)
			}
			snapshot = current
		}
	}
}

// settleEvents absorbs events until the settle delay passes.
// It returns false if ctx is cancelled meanwhile.
func (w *EventWatcher) settleEvents(ctx context.Context, fw *fsnotify.Watcher) bool {
	timer := time.NewTimer(w.settle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case ev, ok := <-fw.Events:
			if !ok {
				// Rescan now; the closed stream is reported on the next loop.
				return true
			}
			w.relevant(fw, ev)
		}
	}
}

// relevant reports whether ev may change the snapshot. New directories are
// added to the watch set as a side effect.
func (w *EventWatcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if isHidden(filepath.Base(ev.Name)) {
		return false
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.logger.Debug("cannot watch new directory", "path", w.scanner.rel(ev.Name), "error", err)
			}
		}
	}
	return true
}

// addTree watches path and every non-hidden directory below it.
func (w *EventWatcher) addTree(fw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.scanner.Root() && isHidden(d.Name()) {
			return fs.SkipDir
		}
		return fw.Add(p)
	})
}

// PollWatcher rescans on a fixed interval.
type PollWatcher struct {
	scanner  *Scanner
	interval time.Duration
	logger   *slog.Logger
}

// NewPollWatcher creates a PollWatcher. A non-positive interval selects
// DefaultPollInterval.
func NewPollWatcher(scanner *Scanner, interval time.Duration, logger *slog.Logger) *PollWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PollWatcher{scanner: scanner, interval: interval, logger: logger}
}

// Name returns "poll".
func (w *PollWatcher) Name() string {
	return ModePoll
}

// Watch implements Strategy.
func (w *PollWatcher) Watch(ctx context.Context, onChange func(model.ChangeSet)) error {
	snapshot := w.scanner.Scan()
	w.logger.Info("integrity baseline established", "mode", w.Name(), "files", len(snapshot))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := w.scanner.Scan()
			if Equal(snapshot, current) {
				continue
			}
			if cs := w.scanner.Diff(snapshot, current); !cs.IsEmpty() {
				onChange(cs)
			}
			snapshot = current
		}
	}
}
