package tor

import (
	"context"
	"errors"
	"sync"
)

// scriptedConn replays circuit listings and fails once they run out.
type scriptedConn struct {
	mu      sync.Mutex
	replies [][]Circuit
	calls   int
	newnyms int
	closed  bool
}

func (c *scriptedConn) GetInfo(context.Context, string) (string, error) {
	return "", errors.New("552 unrecognized key")
}

func (c *scriptedConn) GetConf(context.Context, string) (string, error) {
	return "", errors.New("552 unrecognized configuration key")
}

func (c *scriptedConn) CircuitStatus(context.Context) ([]Circuit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.replies) {
		return nil, errors.New("connection reset")
	}
	reply := c.replies[c.calls]
	c.calls++
	return reply, nil
}

// built returns BUILT circuits with the given IDs.
func built(ids ...string) []Circuit {
	circuits := make([]Circuit, 0, len(ids))
	for _, id := range ids {
		circuits = append(circuits, Circuit{ID: id, Status: CircuitBuilt})
	}
	return circuits
}

func (c *scriptedConn) NewIdentity(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newnyms++
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// flakyDialer fails the first failures dials.
type flakyDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
}

func (d *flakyDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	return &scriptedConn{}, nil
}
