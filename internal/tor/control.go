package tor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"
)

// Conn is an authenticated control port session.
type Conn interface {
	// GetInfo runs GETINFO for a single-line key and returns its value.
	GetInfo(ctx context.Context, key string) (string, error)

	// GetConf runs GETCONF for key and returns its current value.
	GetConf(ctx context.Context, key string) (string, error)

	// CircuitStatus lists the current circuits.
	CircuitStatus(ctx context.Context) ([]Circuit, error)

	// NewIdentity sends SIGNAL NEWNYM.
	NewIdentity(ctx context.Context) error

	// Close ends the session.
	Close() error
}

// Dialer opens control port sessions.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// ControlDialer dials the Tor control port through tornago.
type ControlDialer struct {
	address    string
	cookiePath string
	password   string
	timeout    time.Duration
}

// ControlOption configures a ControlDialer.
type ControlOption func(*ControlDialer)

// WithCookieAuth authenticates with the cookie file at path.
func WithCookieAuth(path string) ControlOption {
	return func(d *ControlDialer) {
		d.cookiePath = path
	}
}

// WithPasswordAuth authenticates with a control password. It takes
// precedence over cookie authentication.
func WithPasswordAuth(password string) ControlOption {
	return func(d *ControlDialer) {
		d.password = password
	}
}

// WithControlTimeout bounds each control port round trip.
func WithControlTimeout(timeout time.Duration) ControlOption {
	return func(d *ControlDialer) {
		d.timeout = timeout
	}
}

// NewControlDialer creates a dialer for the control port at address.
func NewControlDialer(address string, opts ...ControlOption) *ControlDialer {
	d := &ControlDialer{
		address: address,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Address returns the control port address.
func (d *ControlDialer) Address() string {
	return d.address
}

// Dial connects and authenticates. Every failure wraps ErrConnect.
func (d *ControlDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	auth := tornago.ControlAuthFromCookie(d.cookiePath)
	if d.password != "" {
		auth = tornago.ControlAuthFromPassword(d.password)
	}

	client, err := tornago.NewControlClient(d.address, auth, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if err := client.Authenticate(); err != nil {
		_ = client.Close() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("%w: authentication failed: %w", ErrConnect, err)
	}
	return &controlConn{client: client}, nil
}

// controlConn adapts tornago.ControlClient to Conn.
type controlConn struct {
	client *tornago.ControlClient
}

func (c *controlConn) GetInfo(ctx context.Context, key string) (string, error) {
	return c.client.GetInfo(ctx, key)
}

func (c *controlConn) GetConf(ctx context.Context, key string) (string, error) {
	return c.client.GetConf(ctx, key)
}

func (c *controlConn) CircuitStatus(ctx context.Context) ([]Circuit, error) {
	infos, err := c.client.GetCircuitStatus(ctx)
	if err != nil {
		return nil, err
	}
	return fromCircuitInfo(infos), nil
}

func (c *controlConn) NewIdentity(ctx context.Context) error {
	return c.client.NewIdentity(ctx)
}

func (c *controlConn) Close() error {
	return c.client.Close()
}

// DialWithRetry dials up to attempts times, waiting delay between tries.
// It gives up early when ctx is cancelled. The returned error wraps
// ErrConnect and the last dial error.
func DialWithRetry(ctx context.Context, d Dialer, attempts int, delay time.Duration, logger *slog.Logger) (Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := d.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn("control port connection failed",
			"attempt", attempt,
			"attempts", attempts,
			"error", err,
		)

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnect, attempts, lastErr)
}
