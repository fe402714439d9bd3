package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// Metrics provides Prometheus metrics for runs. It implements engine.Observer.
type Metrics struct {
	config MetricsConfig

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	resourcesExecuted *prometheus.CounterVec
	resourceDuration  *prometheus.HistogramVec
	resourcesActive   prometheus.Gauge

	aborts      *prometheus.CounterVec
	commands    *prometheus.CounterVec
	commandTime *prometheus.HistogramVec

	activeRuns prometheus.Gauge

	registry *prometheus.Registry

	// actions maps run IDs to their action for resource labels.
	mu      sync.Mutex
	actions map[string]engine.Action
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled config yields a collector whose methods do nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,
		actions:  make(map[string]engine.Action),

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"action"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"action", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs in seconds",
				Buckets:   buckets,
			},
			[]string{"action", "status"},
		),

		resourcesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_executed_total",
				Help:      "Total number of resource tasks performed",
			},
			[]string{"type", "action", "status"},
		),
		resourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resource_duration_seconds",
				Help:      "Duration of resource tasks in seconds",
				Buckets:   buckets,
			},
			[]string{"type", "action"},
		),
		resourcesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_executing",
				Help:      "Current number of resource tasks executing",
			},
		),

		aborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aborts_total",
				Help:      "Total number of runs whose abort latch was set",
			},
			[]string{"action", "status"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_commands_total",
				Help:      "Total number of backend commands run",
			},
			[]string{"host", "result"},
		),
		commandTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_command_duration_seconds",
				Help:      "Duration of backend commands in seconds",
				Buckets:   buckets,
			},
			[]string{"host"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.resourcesExecuted,
		m.resourceDuration,
		m.resourcesActive,
		m.aborts,
		m.commands,
		m.commandTime,
		m.activeRuns,
	)

	return m, nil
}

// RunStarted implements engine.Observer.
func (m *Metrics) RunStarted(ctx context.Context, runID string, action engine.Action, workers int) {
	if m.registry == nil {
		return
	}
	m.mu.Lock()
	m.actions[runID] = action
	m.mu.Unlock()

	m.runsStarted.WithLabelValues(string(action)).Inc()
	m.activeRuns.Inc()
}

// ResourceStarted implements engine.Observer.
func (m *Metrics) ResourceStarted(ctx context.Context, runID string, res *engine.Resource) {
	if m.registry == nil {
		return
	}
	m.resourcesActive.Inc()
}

// ResourceFinished implements engine.Observer.
func (m *Metrics) ResourceFinished(ctx context.Context, runID string, res *engine.Resource, duration time.Duration, err error) {
	if m.registry == nil {
		return
	}
	action := string(m.action(runID))
	status := "done"
	if err != nil {
		status = "failed"
	}
	m.resourcesActive.Dec()
	m.resourcesExecuted.WithLabelValues(string(res.Type), action, status).Inc()
	m.resourceDuration.WithLabelValues(string(res.Type), action).Observe(duration.Seconds())
}

// RunFinished implements engine.Observer.
func (m *Metrics) RunFinished(ctx context.Context, result *engine.RunResult) {
	if m.registry == nil {
		return
	}
	m.mu.Lock()
	delete(m.actions, result.ID)
	m.mu.Unlock()

	action, status := string(result.Action), string(result.Status)
	m.runsCompleted.WithLabelValues(action, status).Inc()
	m.runDuration.WithLabelValues(action, status).Observe(result.Duration.Seconds())
	m.activeRuns.Dec()
	if result.Status != engine.RunStatusSucceeded {
		m.aborts.WithLabelValues(action, status).Inc()
	}
}

func (m *Metrics) action(runID string) engine.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actions[runID]
}

// RecordCommand records a backend command.
func (m *Metrics) RecordCommand(host string, exitCode int, err error, duration time.Duration) {
	if m.registry == nil {
		return
	}
	if host == "" {
		host = "local"
	}
	result := "ok"
	switch {
	case err != nil && exitCode == 0:
		result = "error"
	case exitCode != 0:
		result = "nonzero"
	}
	m.commands.WithLabelValues(host, result).Inc()
	m.commandTime.WithLabelValues(host).Observe(duration.Seconds())
}

// Registry returns the metrics registry; nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves the metrics endpoint until ctx is done. It
// returns the bound address, which differs from the configured one when
// the port is 0.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger zerolog.Logger) (string, error) {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return "", nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	listener, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return "", err
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("address", listener.Addr().String()).Str("path", path).Msg("Serving metrics")
	return listener.Addr().String(), nil
}

// InstrumentedRunner records every command of a runner in Metrics.
type InstrumentedRunner struct {
	engine.CommandRunner
	metrics *Metrics
}

// InstrumentRunner wraps runner so that its commands are recorded.
func InstrumentRunner(runner engine.CommandRunner, metrics *Metrics) *InstrumentedRunner {
	return &InstrumentedRunner{CommandRunner: runner, metrics: metrics}
}

// RunCommand implements engine.CommandRunner.
func (r *InstrumentedRunner) RunCommand(ctx context.Context, cmd, host string, raiseOnFailure bool) (engine.CommandResult, error) {
	start := time.Now()
	result, err := r.CommandRunner.RunCommand(ctx, cmd, host, raiseOnFailure)
	r.metrics.RecordCommand(host, result.ExitCode, err, time.Since(start))
	return result, err
}
