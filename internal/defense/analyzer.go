package defense

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/onionsentry/internal/log"
	"github.com/nao1215/onionsentry/internal/model"
)

// Window lengths and defaults.
const (
	MinuteWindow = 60 * time.Second
	BurstWindow  = 10 * time.Second

	DefaultMaxPerMinute    = 30
	DefaultMaxPer10Sec     = 15
	DefaultHistoryCapacity = 200
)

// Defender reacts to a detected attack.
type Defender interface {
	Trigger(ctx context.Context) (model.Outcome, error)
}

// Stats is a point-in-time view of the analyzer.
type Stats struct {
	History    int
	LastMinute int
	Last10Sec  int
}

// Analyzer detects abnormal circuit-creation rates.
//
// History is a ring of timestamps in arrival order. Events older than the
// minute window are evicted on every insert, and the ring drops its oldest
// entry once full.
type Analyzer struct {
	mu           sync.Mutex
	ring         []time.Time
	head         int // index of the oldest entry
	size         int
	maxPerMinute int
	maxPer10Sec  int
	defender     Defender
	now          func() time.Time
	logger       *slog.Logger
	observers    []func(model.DefenseEvent)
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithThresholds sets the per-minute and per-10-seconds maxima.
func WithThresholds(perMinute, per10Sec int) AnalyzerOption {
	return func(a *Analyzer) {
		a.maxPerMinute = perMinute
		a.maxPer10Sec = per10Sec
	}
}

// WithCapacity sets the history ring size.
func WithCapacity(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.ring = make([]time.Time, n)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) {
		a.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithObserver registers fn to receive every detection and its outcome.
// Observers run on the goroutine that recorded the event.
func WithObserver(fn func(model.DefenseEvent)) AnalyzerOption {
	return func(a *Analyzer) {
		a.observers = append(a.observers, fn)
	}
}

// NewAnalyzer creates an Analyzer that calls defender on detection.
func NewAnalyzer(defender Defender, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		ring:         make([]time.Time, DefaultHistoryCapacity),
		maxPerMinute: DefaultMaxPerMinute,
		maxPer10Sec:  DefaultMaxPer10Sec,
		defender:     defender,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// RecordBuilt adds a circuit-built event at t and evaluates both windows.
// It reports the detection, if any. The defender runs synchronously after
// the analyzer lock has been released.
func (a *Analyzer) RecordBuilt(ctx context.Context, t time.Time) (model.Detection, bool) {
	det, found := a.record(t)
	if !found {
		return det, false
	}

	if det.Window == model.WindowMinute {
		a.logger.Log(ctx, log.LevelCritical, "ATTACK DETECTED (1min)",
			"circuits", det.Observed, "threshold", det.Threshold)
	} else {
		a.logger.Log(ctx, log.LevelCritical, "BURST ATTACK DETECTED (10sec)",
			"circuits", det.Observed, "threshold", det.Threshold)
	}

	event := model.DefenseEvent{Detection: det}
	if a.defender != nil {
		outcome, err := a.defender.Trigger(ctx)
		event.Outcome = outcome
		if err != nil {
			event.Error = err.Error()
		}
	}
	for _, fn := range a.observers {
		fn(event)
	}
	return det, true
}

// record appends t and makes the detection decision in one critical section.
func (a *Analyzer) record(t time.Time) (model.Detection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.push(t)
	now := a.now()
	a.evictBefore(now)

	minute, burst := a.counts(now)
	switch {
	case minute > a.maxPerMinute:
		a.head, a.size = 0, 0
		return model.Detection{Window: model.WindowMinute, Observed: minute, Threshold: a.maxPerMinute, At: now}, true
	case burst > a.maxPer10Sec:
		return model.Detection{Window: model.WindowBurst, Observed: burst, Threshold: a.maxPer10Sec, At: now}, true
	default:
		return model.Detection{}, false
	}
}

func (a *Analyzer) push(t time.Time) {
	if a.size == len(a.ring) {
		a.ring[a.head] = t
		a.head = (a.head + 1) % len(a.ring)
		return
	}
	a.ring[(a.head+a.size)%len(a.ring)] = t
	a.size++
}

func (a *Analyzer) at(i int) time.Time {
	return a.ring[(a.head+i)%len(a.ring)]
}

// evictBefore drops entries at least a minute older than now.
func (a *Analyzer) evictBefore(now time.Time) {
	for a.size > 0 && now.Sub(a.at(0)) >= MinuteWindow {
		a.head = (a.head + 1) % len(a.ring)
		a.size--
	}
}

func (a *Analyzer) counts(now time.Time) (minute, burst int) {
	for i := 0; i < a.size; i++ {
		age := now.Sub(a.at(i))
		if age < MinuteWindow {
			minute++
		}
		if age < BurstWindow {
			burst++
		}
	}
	return minute, burst
}

// Stats returns the history length and both window counts at the current time.
func (a *Analyzer) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	minute, burst := a.counts(a.now())
	return Stats{History: a.size, LastMinute: minute, Last10Sec: burst}
}
