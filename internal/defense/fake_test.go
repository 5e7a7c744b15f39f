package defense

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nao1215/onionsentry/internal/model"
	"github.com/nao1215/onionsentry/internal/tor"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingDefender records Trigger calls.
type countingDefender struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDefender) Trigger(context.Context) (model.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return model.OutcomeTriggered, nil
}

func (d *countingDefender) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeConn is an in-memory control connection.
type fakeConn struct {
	mu       sync.Mutex
	replies  [][]tor.Circuit
	polls    int
	signals  *int
	signalMu *sync.Mutex
	signalFn func() error
}

func (c *fakeConn) GetInfo(context.Context, string) (string, error) {
	return "", errors.New("552 unrecognized key")
}

func (c *fakeConn) GetConf(context.Context, string) (string, error) {
	return "", errors.New("552 unrecognized configuration key")
}

func (c *fakeConn) CircuitStatus(context.Context) ([]tor.Circuit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.polls >= len(c.replies) {
		return nil, errors.New("connection reset by peer")
	}
	r := c.replies[c.polls]
	c.polls++
	return r, nil
}

// builtCircuits returns BUILT circuits with the given IDs.
func builtCircuits(ids ...string) []tor.Circuit {
	circuits := make([]tor.Circuit, 0, len(ids))
	for _, id := range ids {
		circuits = append(circuits, tor.Circuit{ID: id, Status: tor.CircuitBuilt})
	}
	return circuits
}

func (c *fakeConn) NewIdentity(context.Context) error {
	if c.signalFn != nil {
		if err := c.signalFn(); err != nil {
			return err
		}
	}
	c.signalMu.Lock()
	defer c.signalMu.Unlock()
	*c.signals++
	return nil
}

func (c *fakeConn) Close() error { return nil }

// fakeDialer hands out fakeConns and counts dials and NEWNYM signals.
type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	signals  int
	dialErr  error
	signalFn func() error
	replies  [][]tor.Circuit
	delay    time.Duration
}

func (d *fakeDialer) Dial(context.Context) (tor.Conn, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeConn{
		replies:  d.replies,
		signals:  &d.signals,
		signalMu: &d.mu,
		signalFn: d.signalFn,
	}, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Signals() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signals
}
