package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/onionsentry/internal/integrity"
)

// AppName is used for XDG directory names.
const AppName = "onionsentry"

// Default configuration values.
const (
	// DefaultControlAddress is the Tor control port on the local host.
	DefaultControlAddress = "127.0.0.1:9051"

	// DefaultCookiePath is where Debian-packaged Tor writes its control cookie.
	DefaultCookiePath = "/run/tor/control.authcookie"

	// DefaultSocksAddress is the Tor SOCKS port probed by the privacy audit.
	DefaultSocksAddress = "127.0.0.1:9050"

	// DefaultWebRoot is the directory tree served by the onion service.
	DefaultWebRoot = "/var/www/onion_site"

	// DefaultLogFile is the daemon log destination. "-" selects stderr.
	DefaultLogFile = "/var/log/tor/sentry.log"

	// DefaultMaxCircuitsPerMinute is the 60 second window threshold.
	DefaultMaxCircuitsPerMinute = 30

	// DefaultMaxCircuitsPer10Sec is the 10 second burst threshold.
	DefaultMaxCircuitsPer10Sec = 15

	// DefaultHistoryCapacity bounds the circuit event ring.
	DefaultHistoryCapacity = 200

	// DefaultDefenseCooldown is the minimum spacing between two NEWNYM signals.
	DefaultDefenseCooldown = 10 * time.Second

	// DefaultConnectAttempts and DefaultConnectRetryDelay govern the
	// monitoring connection. The defense path never retries.
	DefaultConnectAttempts   = 3
	DefaultConnectRetryDelay = 5 * time.Second

	// DefaultReconnectDelay is the wait after losing the monitoring connection.
	DefaultReconnectDelay = 10 * time.Second

	// DefaultControlTimeout bounds a single control port round trip.
	DefaultControlTimeout = 10 * time.Second

	// DefaultCircuitPollInterval is how often circuit-status is read.
	DefaultCircuitPollInterval = time.Second

	// DefaultPollInterval is the rescan period of the polling watcher.
	DefaultPollInterval = 5 * time.Second

	// DefaultSettleDelay coalesces bursts of filesystem events.
	DefaultSettleDelay = 500 * time.Millisecond

	// DefaultPrivacyCheckInterval is the period of the privacy audit.
	DefaultPrivacyCheckInterval = 5 * time.Minute

	// DefaultMaxRestarts restarts are allowed per DefaultRestartWindow.
	DefaultMaxRestarts   = 5
	DefaultRestartWindow = 10 * time.Minute

	// DefaultRestartBackoffMin doubles after each restart up to DefaultRestartBackoffMax.
	DefaultRestartBackoffMin = time.Second
	DefaultRestartBackoffMax = time.Minute

	// DefaultShutdownTimeout bounds the wait for units on shutdown.
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultSanitizeDir is the target of "onionsentry sanitize" without arguments.
	DefaultSanitizeDir = "/mnt/ram_logs"
)

// Watch modes for the integrity monitor.
const (
	WatchModeAuto   = integrity.ModeAuto
	WatchModeEvents = integrity.ModeEvents
	WatchModePoll   = integrity.ModePoll
)

// DefaultSuspiciousExtensions returns the extensions whose appearance or
// modification is treated as critical.
func DefaultSuspiciousExtensions() []string {
	return integrity.DefaultSuspiciousExtensions()
}

// Config holds every option of the daemon.
// It is populated by NewConfig, the config file and CLI flags, and is then
// passed down by value or pointer; there is no global instance.
//
// Design decision: a single flat struct. The yaml tags double as the config
// file schema, so loading a file is a plain yaml.Unmarshal over the defaults.
type Config struct {
	// ControlAddress is the Tor control port in "host:port" form.
	ControlAddress string `yaml:"control_address"`

	// CookiePath is the control auth cookie. Ignored when ControlPassword is set.
	CookiePath string `yaml:"cookie_path"`

	// ControlPassword enables password authentication instead of the cookie.
	ControlPassword string `yaml:"control_password"`

	// ControlTimeout bounds a single control port round trip.
	ControlTimeout time.Duration `yaml:"control_timeout"`

	// SocksAddress is the Tor SOCKS port, used by the privacy audit.
	SocksAddress string `yaml:"socks_address"`

	// WebRoot is the directory tree watched for changes.
	WebRoot string `yaml:"web_root"`

	// HiddenServiceDir is the Tor HiddenServiceDir. Empty disables the
	// hostname and key placement checks.
	HiddenServiceDir string `yaml:"hidden_service_dir"`

	// LogFile is the log destination, "-" for stderr.
	LogFile string `yaml:"log_file"`

	// RedactLogs scrubs IP addresses and onion hostnames from log output.
	RedactLogs bool `yaml:"redact_logs"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`

	MaxCircuitsPerMinute int           `yaml:"max_circuits_per_minute"`
	MaxCircuitsPer10Sec  int           `yaml:"max_circuits_per_10sec"`
	HistoryCapacity      int           `yaml:"history_capacity"`
	DefenseCooldown      time.Duration `yaml:"defense_cooldown"`

	ConnectAttempts     int           `yaml:"connect_attempts"`
	ConnectRetryDelay   time.Duration `yaml:"connect_retry_delay"`
	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`
	CircuitPollInterval time.Duration `yaml:"circuit_poll_interval"`

	// WatchMode is one of auto, events or poll.
	WatchMode    string        `yaml:"watch_mode"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay"`

	// SuspiciousExtensions are lowercase extensions including the dot.
	SuspiciousExtensions []string `yaml:"suspicious_extensions"`

	// CheckImageMetadata parses added or modified images for EXIF tags.
	CheckImageMetadata bool `yaml:"check_image_metadata"`

	PrivacyCheckInterval time.Duration `yaml:"privacy_check_interval"`

	// CheckReachability dials the own onion service through the SOCKS port
	// during each audit. It needs HiddenServiceDir.
	CheckReachability bool `yaml:"check_reachability"`

	// MetricsAddress is the Prometheus listener. Empty disables it.
	MetricsAddress string `yaml:"metrics_address"`

	// JournalDir holds journal.db. Defaults to the XDG data directory.
	JournalDir string `yaml:"journal_dir"`

	// DisableJournal turns off event persistence.
	DisableJournal bool `yaml:"disable_journal"`

	MaxRestarts       int           `yaml:"max_restarts"`
	RestartWindow     time.Duration `yaml:"restart_window"`
	RestartBackoffMin time.Duration `yaml:"restart_backoff_min"`
	RestartBackoffMax time.Duration `yaml:"restart_backoff_max"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// EmbeddedTor starts a private Tor daemon for development. The control
	// and SOCKS addresses and cookie path are then taken from that daemon.
	EmbeddedTor       bool          `yaml:"embedded_tor"`
	TorStartupTimeout time.Duration `yaml:"tor_startup_timeout"`

	// ConfigFilePath is the file the configuration was loaded from, if any.
	ConfigFilePath string `yaml:"-"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		ControlAddress:       DefaultControlAddress,
		CookiePath:           DefaultCookiePath,
		ControlTimeout:       DefaultControlTimeout,
		SocksAddress:         DefaultSocksAddress,
		WebRoot:              DefaultWebRoot,
		LogFile:              DefaultLogFile,
		RedactLogs:           true,
		MaxCircuitsPerMinute: DefaultMaxCircuitsPerMinute,
		MaxCircuitsPer10Sec:  DefaultMaxCircuitsPer10Sec,
		HistoryCapacity:      DefaultHistoryCapacity,
		DefenseCooldown:      DefaultDefenseCooldown,
		ConnectAttempts:      DefaultConnectAttempts,
		ConnectRetryDelay:    DefaultConnectRetryDelay,
		ReconnectDelay:       DefaultReconnectDelay,
		CircuitPollInterval:  DefaultCircuitPollInterval,
		WatchMode:            WatchModeAuto,
		PollInterval:         DefaultPollInterval,
		SettleDelay:          DefaultSettleDelay,
		SuspiciousExtensions: DefaultSuspiciousExtensions(),
		CheckImageMetadata:   true,
		PrivacyCheckInterval: DefaultPrivacyCheckInterval,
		JournalDir:           XDGDataDir(),
		MaxRestarts:          DefaultMaxRestarts,
		RestartWindow:        DefaultRestartWindow,
		RestartBackoffMin:    DefaultRestartBackoffMin,
		RestartBackoffMax:    DefaultRestartBackoffMax,
		ShutdownTimeout:      DefaultShutdownTimeout,
		TorStartupTimeout:    DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/onionsentry.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/onionsentry.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// JournalPath returns the journal database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.JournalDir, "journal.db")
}

// Validate checks the configuration and returns the first problem found.
// Suspicious extensions are normalized to lowercase as a side effect.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ControlAddress) == "" && !c.EmbeddedTor {
		return ErrEmptyControlAddress
	}
	if strings.TrimSpace(c.WebRoot) == "" {
		return ErrEmptyWebRoot
	}

	if c.MaxCircuitsPerMinute <= 0 || c.MaxCircuitsPer10Sec <= 0 {
		return ErrInvalidThreshold
	}
	if c.HistoryCapacity <= c.MaxCircuitsPerMinute {
		return ErrInvalidCapacity
	}
	if c.ConnectAttempts < 1 {
		return ErrInvalidAttempts
	}

	durations := map[string]time.Duration{
		"defense_cooldown":       c.DefenseCooldown,
		"connect_retry_delay":    c.ConnectRetryDelay,
		"reconnect_delay":        c.ReconnectDelay,
		"control_timeout":        c.ControlTimeout,
		"circuit_poll_interval":  c.CircuitPollInterval,
		"poll_interval":          c.PollInterval,
		"settle_delay":           c.SettleDelay,
		"privacy_check_interval": c.PrivacyCheckInterval,
		"shutdown_timeout":       c.ShutdownTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, name)
		}
	}

	modes := []string{WatchModeAuto, WatchModeEvents, WatchModePoll}
	if !slices.Contains(modes, c.WatchMode) {
		return ErrInvalidWatchMode
	}

	if c.MaxRestarts < 1 || c.RestartWindow <= 0 ||
		c.RestartBackoffMin <= 0 || c.RestartBackoffMax < c.RestartBackoffMin {
		return ErrInvalidRestartPolicy
	}

	for i, ext := range c.SuspiciousExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
		}
		c.SuspiciousExtensions[i] = strings.ToLower(ext)
	}
	return nil
}
