package tor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nao1215/tornago"
)

// cookieFileName is the control cookie Tor writes into its data directory.
const cookieFileName = "control_auth_cookie"

// EmbeddedTor runs a private Tor daemon through tornago.
// It is meant for development: the daemon gets random SOCKS and control
// ports and a throwaway data directory, so the sentry can be exercised
// without touching a system Tor installation.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets how long Start waits for bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates an unstarted daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: 3 * time.Minute}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches Tor and blocks until it has bootstrapped.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // Best effort cleanup
		return err
	}
	e.process = process
	return nil
}

// Stop terminates the daemon. It is safe to call on an unstarted instance.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// SocksAddr returns the SOCKS address, or "" before Start.
func (e *EmbeddedTor) SocksAddr() string {
	if e.process == nil {
		return ""
	}
	return e.process.SocksAddr()
}

// ControlAddr returns the control port address, or "" before Start.
func (e *EmbeddedTor) ControlAddr() string {
	if e.process == nil {
		return ""
	}
	return e.process.ControlAddr()
}

// CookiePath returns the control cookie location, or "" before Start.
func (e *EmbeddedTor) CookiePath() string {
	if e.process == nil {
		return ""
	}
	return filepath.Join(e.process.DataDir(), cookieFileName)
}

// Dialer returns a ControlDialer for the running daemon.
func (e *EmbeddedTor) Dialer(timeout time.Duration) (*ControlDialer, error) {
	if !e.IsRunning() {
		return nil, ErrNotRunning
	}
	return NewControlDialer(e.ControlAddr(),
		WithCookieAuth(e.CookiePath()),
		WithControlTimeout(timeout),
	), nil
}
