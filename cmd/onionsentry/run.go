package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/onionsentry/internal/config"
	"github.com/nao1215/onionsentry/internal/defense"
	"github.com/nao1215/onionsentry/internal/integrity"
	"github.com/nao1215/onionsentry/internal/journal"
	sentrylog "github.com/nao1215/onionsentry/internal/log"
	"github.com/nao1215/onionsentry/internal/metrics"
	"github.com/nao1215/onionsentry/internal/privacy"
	"github.com/nao1215/onionsentry/internal/supervisor"
	"github.com/nao1215/onionsentry/internal/tor"
)

// Unit names as they appear in logs and the restart counter.
const (
	unitCircuitMonitor = "circuit-monitor"
	unitFileIntegrity  = "file-integrity"
	unitPrivacyAudit   = "privacy-audit"
	unitMetrics        = "metrics"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sentry daemon",
		Long: `Run starts the sentry and keeps it running until SIGINT or SIGTERM.

The daemon supervises these units:
- circuit-monitor: counts circuit builds and sends NEWNYM on a burst
- file-integrity:  reports files added, removed or modified under the web root
- privacy-audit:   periodically checks the Tor and hidden service configuration
- metrics:         serves Prometheus counters (only with --metrics-address)

Values are taken from the defaults, then the configuration file, then flags.

Examples:
  # Run against the system Tor with cookie authentication
  onionsentry run

  # Watch a different web root and log to stderr
  onionsentry run -w /srv/onion -l -

  # Expose metrics on localhost
  onionsentry run --metrics-address 127.0.0.1:9464

  # Try it out against a private Tor daemon
  onionsentry run --embedded-tor -l -`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	// Tor control flags
	cmd.Flags().StringP("control-address", "a", config.DefaultControlAddress,
		"Tor control port address")
	cmd.Flags().String("cookie-path", config.DefaultCookiePath,
		"Tor control auth cookie file")
	cmd.Flags().String("socks-address", config.DefaultSocksAddress,
		"Tor SOCKS port probed by the privacy audit (empty disables the probe)")
	cmd.Flags().Bool("embedded-tor", false,
		"Start a private Tor daemon instead of using the system one (development)")

	// Defense flags
	cmd.Flags().Int("max-per-minute", config.DefaultMaxCircuitsPerMinute,
		"Circuits per 60 seconds that count as an attack")
	cmd.Flags().Int("max-per-10sec", config.DefaultMaxCircuitsPer10Sec,
		"Circuits per 10 seconds that count as an attack")
	cmd.Flags().Duration("cooldown", config.DefaultDefenseCooldown,
		"Minimum time between two NEWNYM signals")

	// Integrity flags
	cmd.Flags().StringP("web-root", "w", config.DefaultWebRoot,
		"Directory tree served by the onion service")
	cmd.Flags().String("watch-mode", config.WatchModeAuto,
		"File watch strategy: auto, events or poll")
	cmd.Flags().Duration("poll-interval", config.DefaultPollInterval,
		"Rescan period of the polling watcher")
	cmd.Flags().Bool("no-metadata", false,
		"Do not inspect added images for identifying EXIF tags")

	// Privacy audit flags
	cmd.Flags().String("hidden-service-dir", "",
		"Tor HiddenServiceDir to check for a valid hostname and key placement")
	cmd.Flags().Duration("privacy-interval", config.DefaultPrivacyCheckInterval,
		"Time between privacy audits")
	cmd.Flags().Bool("check-reachability", false,
		"Dial the own onion service through the SOCKS port during each audit")

	// Output flags
	cmd.Flags().StringP("log-file", "l", config.DefaultLogFile,
		"Log file path, - for stderr")
	cmd.Flags().Bool("no-redact", false,
		"Keep IP addresses and onion hostnames in log output")
	cmd.Flags().StringP("metrics-address", "m", "",
		"Serve Prometheus metrics on this address (empty disables)")
	cmd.Flags().String("journal-dir", config.XDGDataDir(),
		"Directory of the event journal")
	cmd.Flags().Bool("no-journal", false,
		"Do not record events in the journal")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	out, err := openLogOutput(cfg.LogFile)
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck // Log output is closed on exit

	logger := sentrylog.NewRedactingLogger(out, cfg.Verbose, cfg.RedactLogs)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, cleanup, err := setupDialer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	d := newDaemon(ctx, cfg, dialer, logger)
	defer d.Close()

	logStartup(logger, cfg, d)
	err = d.supervisor.Run(ctx)
	logger.Info("onionsentry stopped",
		"defense_triggers", d.actuator.Count(),
		"file_changes", d.integrity.Changes())
	return err
}

// buildConfig merges defaults, the configuration file and changed flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path := config.FindConfigFile(configPath); path != "" {
		if err := config.LoadConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if configPath != "" {
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag the user set explicitly, so that
// flag defaults never mask values from the configuration file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var err error
	str := func(name string, dst *string) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetInt(name)
		}
	}
	dur := func(name string, dst *time.Duration) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetDuration(name)
		}
	}
	boolean := func(name string, dst *bool, negate bool) {
		if err == nil && flags.Changed(name) {
			var v bool
			v, err = flags.GetBool(name)
			*dst = v != negate
		}
	}

	boolean("verbose", &cfg.Verbose, false)
	str("control-address", &cfg.ControlAddress)
	str("cookie-path", &cfg.CookiePath)
	str("socks-address", &cfg.SocksAddress)
	boolean("embedded-tor", &cfg.EmbeddedTor, false)
	num("max-per-minute", &cfg.MaxCircuitsPerMinute)
	num("max-per-10sec", &cfg.MaxCircuitsPer10Sec)
	dur("cooldown", &cfg.DefenseCooldown)
	str("web-root", &cfg.WebRoot)
	str("watch-mode", &cfg.WatchMode)
	dur("poll-interval", &cfg.PollInterval)
	boolean("no-metadata", &cfg.CheckImageMetadata, true)
	str("hidden-service-dir", &cfg.HiddenServiceDir)
	dur("privacy-interval", &cfg.PrivacyCheckInterval)
	boolean("check-reachability", &cfg.CheckReachability, false)
	str("log-file", &cfg.LogFile)
	boolean("no-redact", &cfg.RedactLogs, true)
	str("metrics-address", &cfg.MetricsAddress)
	str("journal-dir", &cfg.JournalDir)
	boolean("no-journal", &cfg.DisableJournal, false)
	return err
}

// nopWriteCloser keeps os.Stderr open when the log output is closed.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// openLogOutput opens the log destination for appending. "-" is stderr.
func openLogOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stderr}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // User-provided log path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// setupDialer returns the control port dialer and a cleanup function.
// With EmbeddedTor the daemon is started first and its control and SOCKS
// addresses replace the configured ones.
func setupDialer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tor.Dialer, func(), error) {
	if !cfg.EmbeddedTor {
		return newControlDialer(cfg), func() {}, nil
	}

	fmt.Fprintln(os.Stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(os.Stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	dialer, err := embeddedTor.Dialer(cfg.ControlTimeout)
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, nil, err
	}

	cfg.ControlAddress = embeddedTor.ControlAddr()
	cfg.CookiePath = embeddedTor.CookiePath()
	cfg.ControlPassword = ""
	cfg.SocksAddress = embeddedTor.SocksAddr()
	logger.Info("embedded Tor daemon started",
		"socks_addr", cfg.SocksAddress,
		"control_addr", cfg.ControlAddress)

	cleanup := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
	return dialer, cleanup, nil
}

// newControlDialer authenticates with the password when one is set and with
// the cookie file otherwise.
func newControlDialer(cfg *config.Config) *tor.ControlDialer {
	opts := []tor.ControlOption{tor.WithControlTimeout(cfg.ControlTimeout)}
	if cfg.ControlPassword != "" {
		opts = append(opts, tor.WithPasswordAuth(cfg.ControlPassword))
	} else {
		opts = append(opts, tor.WithCookieAuth(cfg.CookiePath))
	}
	return tor.NewControlDialer(cfg.ControlAddress, opts...)
}

// daemon holds the assembled components of the run command.
type daemon struct {
	supervisor *supervisor.Supervisor
	actuator   *defense.Actuator
	integrity  *integrity.Monitor
	journal    *journal.Journal
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// newDaemon wires every component and registers the units. A journal that
// cannot be opened is logged and the daemon runs without it.
func newDaemon(ctx context.Context, cfg *config.Config, dialer tor.Dialer, logger *slog.Logger) *daemon {
	// Observers keep writing while units drain after cancellation.
	obsCtx := context.WithoutCancel(ctx)

	d := &daemon{
		metrics: metrics.New(),
		logger:  logger,
	}
	if !cfg.DisableJournal {
		opts := journal.DefaultOptions()
		opts.WebRoot = cfg.WebRoot
		opts.Logger = logger
		j, err := journal.Open(cfg.JournalPath(), opts)
		if err != nil {
			logger.Error("journal unavailable, events will not be persisted", "error", err)
		} else {
			d.journal = j
		}
	}

	if err := os.MkdirAll(cfg.WebRoot, 0750); err != nil {
		logger.Error("failed to create web root", "path", cfg.WebRoot, "error", err)
	}

	d.actuator = defense.NewActuator(dialer,
		defense.WithCooldown(cfg.DefenseCooldown),
		defense.WithActuatorLogger(logger))

	analyzerOpts := []defense.AnalyzerOption{
		defense.WithThresholds(cfg.MaxCircuitsPerMinute, cfg.MaxCircuitsPer10Sec),
		defense.WithCapacity(cfg.HistoryCapacity),
		defense.WithLogger(logger),
		defense.WithObserver(d.metrics.ObserveDefense),
	}
	monitorOpts := []integrity.MonitorOption{
		integrity.WithMode(cfg.WatchMode),
		integrity.WithWatchTiming(cfg.SettleDelay, cfg.PollInterval),
		integrity.WithMetadataCheck(cfg.CheckImageMetadata),
		integrity.WithMonitorLogger(logger),
		integrity.WithChangeObserver(d.metrics.ObserveChange),
	}
	auditorOpts := []privacy.Option{
		privacy.WithInterval(cfg.PrivacyCheckInterval),
		privacy.WithSOCKS(cfg.SocksAddress, cfg.ControlTimeout),
		privacy.WithReachability(cfg.CheckReachability),
		privacy.WithLogger(logger),
		privacy.WithResultObserver(d.metrics.ObserveAudit),
	}
	if cfg.HiddenServiceDir != "" {
		auditorOpts = append(auditorOpts, privacy.WithHiddenService(cfg.HiddenServiceDir, cfg.WebRoot))
	}
	if d.journal != nil {
		analyzerOpts = append(analyzerOpts, defense.WithObserver(d.journal.DefenseObserver(obsCtx)))
		monitorOpts = append(monitorOpts, integrity.WithChangeObserver(d.journal.ChangeObserver(obsCtx, nil)))
		auditorOpts = append(auditorOpts, privacy.WithResultObserver(d.journal.AuditObserver(obsCtx)))
	}

	analyzer := defense.NewAnalyzer(d.actuator, analyzerOpts...)
	circuits := defense.NewMonitor(dialer, analyzer,
		defense.WithRetry(cfg.ConnectAttempts, cfg.ConnectRetryDelay),
		defense.WithReconnectDelay(cfg.ReconnectDelay),
		defense.WithPollInterval(cfg.CircuitPollInterval),
		defense.WithCircuitHook(d.metrics.ObserveCircuit),
		defense.WithMonitorLogger(logger))

	scanner := integrity.NewScanner(cfg.WebRoot,
		integrity.WithSuspiciousExtensions(cfg.SuspiciousExtensions),
		integrity.WithScannerLogger(logger))
	d.integrity = integrity.NewMonitor(scanner, monitorOpts...)

	auditor := privacy.NewAuditor(dialer, auditorOpts...)

	d.supervisor = supervisor.New(
		supervisor.WithBackoff(cfg.RestartBackoffMin, cfg.RestartBackoffMax),
		supervisor.WithRestartBudget(cfg.MaxRestarts, cfg.RestartWindow),
		supervisor.WithShutdownTimeout(cfg.ShutdownTimeout),
		supervisor.WithRestartHook(d.metrics.ObserveRestart),
		supervisor.WithLogger(logger),
	)
	d.supervisor.Add(
		supervisor.Unit{Name: unitCircuitMonitor, Run: circuits.Run},
		supervisor.Unit{Name: unitFileIntegrity, Run: d.integrity.Run},
		supervisor.Unit{Name: unitPrivacyAudit, Run: auditor.Run},
	)
	if cfg.MetricsAddress != "" {
		addr := cfg.MetricsAddress
		d.supervisor.Add(supervisor.Unit{
			Name: unitMetrics,
			Run: func(ctx context.Context) error {
				return d.metrics.Serve(ctx, addr, logger)
			},
		})
	}
	return d
}

// Close releases the journal.
func (d *daemon) Close() {
	if d.journal == nil {
		return
	}
	if err := d.journal.Close(); err != nil {
		d.logger.Error("failed to close journal", "error", err)
	}
}

func logStartup(logger *slog.Logger, cfg *config.Config, d *daemon) {
	journalPath := "disabled"
	if d.journal != nil {
		journalPath = d.journal.Path()
	}
	metricsAddr := "disabled"
	if cfg.MetricsAddress != "" {
		metricsAddr = cfg.MetricsAddress
	}
	logger.Info("onionsentry started",
		"version", getVersion(),
		"units", d.supervisor.Names(),
		"web_root", cfg.WebRoot,
		"max_per_minute", cfg.MaxCircuitsPerMinute,
		"max_per_10sec", cfg.MaxCircuitsPer10Sec,
		"cooldown", cfg.DefenseCooldown,
		"watch_mode", cfg.WatchMode,
		"journal", journalPath,
		"metrics", metricsAddr,
	)
}
