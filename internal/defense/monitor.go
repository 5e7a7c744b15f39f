package defense

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/onionsentry/internal/tor"
)

// Monitor defaults.
const (
	DefaultConnectAttempts   = 3
	DefaultConnectRetryDelay = 5 * time.Second
	DefaultReconnectDelay    = 10 * time.Second
	DefaultPollInterval      = time.Second
)

// Monitor keeps a control connection open and feeds BUILT circuits into an
// Analyzer.
type Monitor struct {
	dialer         tor.Dialer
	analyzer       *Analyzer
	attempts       int
	retryDelay     time.Duration
	reconnectDelay time.Duration
	pollInterval   time.Duration
	now            func() time.Time
	onCircuit      func()
	logger         *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithRetry sets the connect attempts and the delay between them.
func WithRetry(attempts int, delay time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.attempts = attempts
		m.retryDelay = delay
	}
}

// WithReconnectDelay sets the wait after a lost or failed connection.
func WithReconnectDelay(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.reconnectDelay = d
	}
}

// WithPollInterval sets how often circuit-status is read.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.pollInterval = d
	}
}

// WithMonitorClock replaces time.Now for event timestamps.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithCircuitHook registers fn to run for every built circuit.
func WithCircuitHook(fn func()) MonitorOption {
	return func(m *Monitor) {
		m.onCircuit = fn
	}
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a Monitor.
func NewMonitor(dialer tor.Dialer, analyzer *Analyzer, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		dialer:         dialer,
		analyzer:       analyzer,
		attempts:       DefaultConnectAttempts,
		retryDelay:     DefaultConnectRetryDelay,
		reconnectDelay: DefaultReconnectDelay,
		pollInterval:   DefaultPollInterval,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Run monitors circuits until ctx is cancelled. Connection failures and
// losses are logged and followed by a reconnect after the reconnect delay;
// they are never returned.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		conn, err := tor.DialWithRetry(ctx, m.dialer, m.attempts, m.retryDelay, m.logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("cannot connect to Tor, retrying later",
				"delay", m.reconnectDelay, "error", err)
			if !sleep(ctx, m.reconnectDelay) {
				return nil
			}
			continue
		}

		m.logger.Info("circuit monitoring active")
		err = tor.SubscribeCircuits(ctx, conn, m.pollInterval, m.handleBuilt(ctx))
		_ = conn.Close() //nolint:errcheck // Connection is discarded either way

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, tor.ErrConnectionLost) {
			m.logger.Warn("controller connection lost, reconnecting", "error", err)
		} else if err != nil {
			m.logger.Error("circuit monitoring error", "error", err)
		}
		if !sleep(ctx, m.reconnectDelay) {
			return nil
		}
	}
}

func (m *Monitor) handleBuilt(ctx context.Context) func(string) {
	return func(id string) {
		m.logger.Debug("circuit built", "circuit", id)
		if m.onCircuit != nil {
			m.onCircuit()
		}
		m.analyzer.RecordBuilt(ctx, m.now())
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
