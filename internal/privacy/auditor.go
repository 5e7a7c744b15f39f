package privacy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/onionsentry/internal/model"
	"github.com/nao1215/onionsentry/internal/tor"
)

// DefaultInterval is the time between audits.
const DefaultInterval = 5 * time.Minute

// Check identifiers used in results, journal rows and metric labels.
const (
	CheckControl      = "control_port"
	CheckVersion      = "tor_version"
	CheckSafeLogging  = "safe_logging"
	CheckHostname     = "onion_hostname"
	CheckPublicKey    = "onion_public_key"
	CheckKeyExposure  = "key_exposure"
	CheckSOCKS        = "socks_proxy"
	CheckReachability = "onion_reachable"
)

// SafeLoggingOption is the torrc option that scrubs addresses from Tor's
// own logs. Tor defaults to 1.
const SafeLoggingOption = "SafeLogging"

// Files written by Tor into a HiddenServiceDir.
const (
	HostnameFile  = "hostname"
	PublicKeyFile = "hs_ed25519_public_key"
)

// Auditor runs the privacy checks.
type Auditor struct {
	dialer           tor.Dialer
	interval         time.Duration
	hiddenServiceDir string
	webRoot          string
	socksAddr        string
	probeTimeout     time.Duration
	reachability     bool
	now              func() time.Time
	observers        []func(model.AuditResult)
	logger           *slog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithInterval sets the time between audits.
func WithInterval(d time.Duration) Option {
	return func(a *Auditor) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithHiddenService enables the hidden service directory checks.
// webRoot is the served tree the directory must stay out of.
func WithHiddenService(dir, webRoot string) Option {
	return func(a *Auditor) {
		a.hiddenServiceDir = dir
		a.webRoot = webRoot
	}
}

// WithSOCKS enables the SOCKS probe against addr.
func WithSOCKS(addr string, timeout time.Duration) Option {
	return func(a *Auditor) {
		a.socksAddr = addr
		if timeout > 0 {
			a.probeTimeout = timeout
		}
	}
}

// WithReachability dials the onion service through the SOCKS proxy.
// It needs both WithSOCKS and WithHiddenService.
func WithReachability(enabled bool) Option {
	return func(a *Auditor) {
		a.reachability = enabled
	}
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

// WithResultObserver registers fn to be called for every check result.
func WithResultObserver(fn func(model.AuditResult)) Option {
	return func(a *Auditor) {
		a.observers = append(a.observers, fn)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// NewAuditor creates an Auditor that reaches Tor through dialer.
func NewAuditor(dialer tor.Dialer, opts ...Option) *Auditor {
	a := &Auditor{
		dialer:       dialer,
		interval:     DefaultInterval,
		probeTimeout: tor.DefaultProbeTimeout,
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

// Run audits immediately and then every interval until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		results := a.Audit(ctx)
		a.logger.Info("privacy audit finished", "result", Summary(results))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Audit runs every enabled check once and returns the results in order.
func (a *Auditor) Audit(ctx context.Context) []model.AuditResult {
	var results []model.AuditResult
	add := func(check string, ok bool, detail string) {
		r := model.AuditResult{Check: check, OK: ok, Detail: detail, At: a.now()}
		results = append(results, r)
		a.report(ctx, r)
	}

	a.auditControl(ctx, add)

	var hostname string
	if a.hiddenServiceDir != "" {
		hostname = a.auditHiddenService(add)
	}

	if a.socksAddr != "" {
		status := tor.ProbeSOCKS(ctx, a.socksAddr, a.probeTimeout)
		add(CheckSOCKS, status == tor.ProxyStatusOK, "SOCKS proxy status: "+status.String())

		if a.reachability && hostname != "" {
			err := tor.DialOnion(ctx, a.socksAddr, hostname+":80", a.probeTimeout)
			if err != nil {
				a.logger.Debug("onion service dial failed", "error", err)
				add(CheckReachability, false, "onion service did not answer through the SOCKS proxy")
			} else {
				add(CheckReachability, true, "onion service answered through the SOCKS proxy")
			}
		}
	}
	return results
}

// auditControl reads the version and configuration over one connection.
func (a *Auditor) auditControl(ctx context.Context, add func(string, bool, string)) {
	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		add(CheckControl, false, "cannot reach the control port")
		a.logger.Debug("privacy audit dial failed", "error", err)
		return
	}
	defer conn.Close()

	version, err := conn.GetInfo(ctx, "version")
	if err != nil {
		add(CheckVersion, false, "cannot read Tor version")
	} else {
		add(CheckVersion, true, "Tor "+strings.TrimSpace(version))
	}

	safeLogging, err := conn.GetConf(ctx, SafeLoggingOption)
	switch {
	case err != nil:
		add(CheckSafeLogging, false, "cannot read SafeLogging")
	case strings.TrimSpace(safeLogging) == "0":
		add(CheckSafeLogging, false, "SafeLogging is disabled; Tor logs may contain addresses")
	default:
		add(CheckSafeLogging, true, "SafeLogging is enabled")
	}
}

// auditHiddenService checks the HiddenServiceDir and returns the service
// hostname when it is valid.
func (a *Auditor) auditHiddenService(add func(string, bool, string)) string {
	hostname, err := tor.ReadHostname(filepath.Join(a.hiddenServiceDir, HostnameFile))
	if err != nil {
		add(CheckHostname, false, "hostname file is missing or not a valid v3 address")
		a.logger.Debug("cannot read hostname file", "error", err)
		hostname = ""
	} else {
		add(CheckHostname, true, "hostname file holds a valid v3 address")
	}

	if hostname != "" {
		derived, err := tor.ReadPublicKeyAddress(filepath.Join(a.hiddenServiceDir, PublicKeyFile))
		switch {
		case err != nil:
			a.logger.Debug("public key check skipped", "error", err)
		case derived != hostname:
			add(CheckPublicKey, false, "public key does not match the hostname file")
		default:
			add(CheckPublicKey, true, "public key matches the hostname file")
		}
	}

	if a.webRoot != "" {
		if isInside(a.webRoot, a.hiddenServiceDir) {
			add(CheckKeyExposure, false, "hidden service directory is inside the web root")
		} else {
			add(CheckKeyExposure, true, "hidden service directory is outside the web root")
		}
	}
	return hostname
}

func (a *Auditor) report(ctx context.Context, r model.AuditResult) {
	if r.OK {
		a.logger.Debug("privacy check passed", "check", r.Check, "detail", r.Detail)
	} else {
		a.logger.Log(ctx, slog.LevelWarn, "privacy check failed", "check", r.Check, "detail", r.Detail)
	}
	for _, fn := range a.observers {
		fn(r)
	}
}

// isInside reports whether path equals root or lies below it.
func isInside(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Summary counts checks and failures.
func Summary(results []model.AuditResult) string {
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	return fmt.Sprintf("%d checks, %d failed", len(results), failed)
}
