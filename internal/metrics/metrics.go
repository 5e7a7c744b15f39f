// Package metrics exposes the daemon's counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/onionsentry/internal/model"
)

const namespace = "onionsentry"

// Path is where the handler is mounted by Serve.
const Path = "/metrics"

// shutdownTimeout bounds the graceful stop of the HTTP server.
const shutdownTimeout = 5 * time.Second

// Metrics holds the counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	circuits prometheus.Counter
	defenses *prometheus.CounterVec
	changes  *prometheus.CounterVec
	restarts *prometheus.CounterVec
	audits   *prometheus.CounterVec
}

// New creates and registers the counters along with the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		circuits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuits_built_total",
			Help:      "Circuits observed reaching BUILT.",
		}),
		defenses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defense_triggers_total",
			Help:      "Defense trigger attempts by outcome.",
		}, []string{"outcome"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_changes_total",
			Help:      "Web root changes by kind and severity.",
		}, []string{"kind", "severity"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_restarts_total",
			Help:      "Supervisor restarts by unit.",
		}, []string{"unit"}),
		audits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "privacy_checks_total",
			Help:      "Privacy audit check results.",
		}, []string{"check", "result"}),
	}

	m.registry.MustRegister(
		m.circuits, m.defenses, m.changes, m.restarts, m.audits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Export zero values so rate() works before the first event.
	for _, o := range model.AllOutcomes() {
		m.defenses.WithLabelValues(o.String())
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCircuit counts one built circuit.
func (m *Metrics) ObserveCircuit() {
	m.circuits.Inc()
}

// ObserveDefense counts a defense event.
func (m *Metrics) ObserveDefense(ev model.DefenseEvent) {
	m.defenses.WithLabelValues(ev.Outcome.String()).Inc()
}

// ObserveChange counts a file change.
func (m *Metrics) ObserveChange(c model.Change) {
	m.changes.WithLabelValues(c.Kind.String(), c.Severity.String()).Inc()
}

// ObserveRestart counts a unit restart.
func (m *Metrics) ObserveRestart(unit string) {
	m.restarts.WithLabelValues(unit).Inc()
}

// ObserveAudit counts a privacy check result.
func (m *Metrics) ObserveAudit(r model.AuditResult) {
	m.audits.WithLabelValues(r.Check, r.Result()).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves Handler at Path until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return m.serve(ctx, ln, logger)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle(Path, m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("metrics server listening", "address", ln.Addr().String(), "path", Path)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		return nil
	}
}
