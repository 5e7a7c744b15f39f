package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Supervisor defaults.
const (
	DefaultCheckInterval   = time.Second
	DefaultBackoffMin      = time.Second
	DefaultBackoffMax      = time.Minute
	DefaultMaxRestarts     = 5
	DefaultRestartWindow   = 10 * time.Minute
	DefaultShutdownTimeout = 5 * time.Second
)

// Unit is a named long-running task. Run should return when ctx is
// cancelled.
type Unit struct {
	Name string
	Run  func(ctx context.Context) error
}

// unitState is owned by the liveness loop.
type unitState struct {
	unit      Unit
	running   bool
	down      bool
	exited    chan error
	startedAt time.Time
	restartAt time.Time
	backoff   time.Duration
	budget    *rate.Limiter
}

// Supervisor owns a set of units.
type Supervisor struct {
	units           []Unit
	checkInterval   time.Duration
	backoffMin      time.Duration
	backoffMax      time.Duration
	maxRestarts     int
	restartWindow   time.Duration
	shutdownTimeout time.Duration
	onRestart       func(name string)
	logger          *slog.Logger
	wg              sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCheckInterval sets the liveness loop period.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithBackoff sets the first restart delay and its upper bound.
func WithBackoff(lower, upper time.Duration) Option {
	return func(s *Supervisor) {
		if lower > 0 && upper >= lower {
			s.backoffMin = lower
			s.backoffMax = upper
		}
	}
}

// WithRestartBudget allows n restarts per window for each unit.
func WithRestartBudget(n int, window time.Duration) Option {
	return func(s *Supervisor) {
		if n > 0 && window > 0 {
			s.maxRestarts = n
			s.restartWindow = window
		}
	}
}

// WithShutdownTimeout bounds the wait for units after cancellation.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithRestartHook registers fn to be called with the unit name on every
// restart.
func WithRestartHook(fn func(name string)) Option {
	return func(s *Supervisor) {
		s.onRestart = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// New creates a Supervisor with no units.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		checkInterval:   DefaultCheckInterval,
		backoffMin:      DefaultBackoffMin,
		backoffMax:      DefaultBackoffMax,
		maxRestarts:     DefaultMaxRestarts,
		restartWindow:   DefaultRestartWindow,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Add registers a unit. Units must be added before Run.
func (s *Supervisor) Add(units ...Unit) {
	s.units = append(s.units, units...)
}

// Names returns the registered unit names in order.
func (s *Supervisor) Names() []string {
	names := make([]string, len(s.units))
	for i, u := range s.units {
		names[i] = u.Name
	}
	return names
}

// Run starts every unit and supervises them until ctx is cancelled.
// It returns ErrShutdownTimeout if units are still running when the
// shutdown timeout expires.
func (s *Supervisor) Run(ctx context.Context) error {
	unitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := make([]*unitState, len(s.units))
	for i, u := range s.units {
		states[i] = &unitState{
			unit:    u,
			backoff: s.backoffMin,
			budget:  newBudget(s),
		}
		s.start(unitCtx, states[i])
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			return s.join()
		case now := <-ticker.C:
			for _, st := range states {
				s.check(unitCtx, st, now)
			}
		}
	}
}

// check reaps an exited unit and restarts it once its backoff has passed.
func (s *Supervisor) check(ctx context.Context, st *unitState, now time.Time) {
	if st.running {
		select {
		case err := <-st.exited:
			st.running = false
			s.scheduleRestart(st, now, err)
		default:
			return
		}
	}
	if st.down || now.Before(st.restartAt) {
		return
	}

	s.logger.Warn("restarting unit", "unit", st.unit.Name)
	if s.onRestart != nil {
		s.onRestart(st.unit.Name)
	}
	s.start(ctx, st)
}

func (s *Supervisor) scheduleRestart(st *unitState, now time.Time, err error) {
	if err != nil {
		s.logger.Error("unit failed", "unit", st.unit.Name, "error", err)
	} else {
		s.logger.Warn("unit exited", "unit", st.unit.Name)
	}

	if !st.budget.AllowN(now, 1) {
		st.down = true
		s.logger.Error("restart budget exhausted, leaving unit down",
			"unit", st.unit.Name,
			"max_restarts", s.maxRestarts,
			"window", s.restartWindow)
		return
	}

	// A unit that stayed up longer than the maximum backoff starts over.
	if now.Sub(st.startedAt) > s.backoffMax {
		st.backoff = s.backoffMin
	}
	st.restartAt = now.Add(st.backoff)
	st.backoff = min(st.backoff*2, s.backoffMax)
}

// newBudget allows maxRestarts restarts at once, refilled evenly over the
// restart window.
func newBudget(s *Supervisor) *rate.Limiter {
	return rate.NewLimiter(rate.Every(s.restartWindow/time.Duration(s.maxRestarts)), s.maxRestarts)
}

func (s *Supervisor) start(ctx context.Context, st *unitState) {
	exited := make(chan error, 1)
	st.exited = exited
	st.running = true
	st.startedAt = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		exited <- s.runUnit(ctx, st.unit)
	}()
}

func (s *Supervisor) runUnit(ctx context.Context, u Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("unit panicked", "unit", u.Name, "panic", r)
			err = fmt.Errorf("%w: %v", ErrUnitPanicked, r)
		}
	}()
	return u.Run(ctx)
}

// join waits for every unit goroutine, at most the shutdown timeout.
func (s *Supervisor) join() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info("all units stopped")
		return nil
	case <-timer.C:
		s.logger.Error("shutdown timed out", "timeout", s.shutdownTimeout)
		return ErrShutdownTimeout
	}
}
