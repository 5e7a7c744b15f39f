package defense

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/onionsentry/internal/model"
	"github.com/nao1215/onionsentry/internal/tor"
)

// DefaultCooldown is the minimum spacing between two NEWNYM signals.
const DefaultCooldown = 10 * time.Second

// Actuator forces new Tor circuits.
//
// Design decision: the mutex is held for the whole check, dial, signal and
// update sequence. Two concurrent Trigger calls therefore cannot both reach
// the control port inside one cooldown period.
type Actuator struct {
	mu          sync.Mutex
	dialer      tor.Dialer
	cooldown    time.Duration
	lastTrigger time.Time
	count       int
	now         func() time.Time
	logger      *slog.Logger
}

// ActuatorOption configures an Actuator.
type ActuatorOption func(*Actuator)

// WithCooldown sets the minimum spacing between signals.
func WithCooldown(d time.Duration) ActuatorOption {
	return func(a *Actuator) {
		a.cooldown = d
	}
}

// WithActuatorClock replaces time.Now.
func WithActuatorClock(now func() time.Time) ActuatorOption {
	return func(a *Actuator) {
		a.now = now
	}
}

// WithActuatorLogger sets the logger.
func WithActuatorLogger(logger *slog.Logger) ActuatorOption {
	return func(a *Actuator) {
		a.logger = logger
	}
}

// NewActuator creates an Actuator that dials the control port with dialer.
func NewActuator(dialer tor.Dialer, opts ...ActuatorOption) *Actuator {
	a := &Actuator{
		dialer:   dialer,
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Trigger sends NEWNYM unless the cooldown is active.
// The control port is dialed once with no retry. The counter and the
// last-trigger time change only when the signal was delivered.
func (a *Actuator) Trigger(ctx context.Context) (model.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.count > 0 && now.Sub(a.lastTrigger) < a.cooldown {
		a.logger.Warn("NEWNYM rate limited, cooldown active",
			"remaining", a.cooldown-now.Sub(a.lastTrigger))
		return model.OutcomeRateLimited, nil
	}

	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		a.logger.Error("defense failed, cannot reach control port", "error", err)
		return model.OutcomeFailed, fmt.Errorf("%w: %w", ErrSignalFailed, err)
	}
	defer conn.Close()

	a.logger.Warn("defense triggered, sending NEWNYM")
	if err := conn.NewIdentity(ctx); err != nil {
		a.logger.Error("failed to send NEWNYM", "error", err)
		return model.OutcomeFailed, fmt.Errorf("%w: %w", ErrSignalFailed, err)
	}

	a.count++
	a.lastTrigger = now
	a.logger.Info("NEWNYM executed", "total_defenses", a.count)
	return model.OutcomeTriggered, nil
}

// Count returns the number of delivered signals.
func (a *Actuator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// LastTrigger returns when the last signal was delivered, or the zero time.
func (a *Actuator) LastTrigger() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastTrigger
}
