package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/provisioner/pkg/backends"
	"github.com/openfroyo/provisioner/pkg/config"
	"github.com/openfroyo/provisioner/pkg/engine"
	"github.com/openfroyo/provisioner/pkg/policy"
	"github.com/openfroyo/provisioner/pkg/stores"
	"github.com/openfroyo/provisioner/pkg/tasks"
	"github.com/openfroyo/provisioner/pkg/telemetry"
)

// runFlags override the graph file's settings.
type runFlags struct {
	workers     int
	kubeContext string
	stateDB     string
	metricsAddr string
	tracing     string
	skipPolicy  bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.workers, "workers", 0, "number of concurrent workers (default from settings)")
	cmd.Flags().StringVar(&f.kubeContext, "kube-context", "", "kubectl and helm context")
	cmd.Flags().StringVar(&f.stateDB, "state-db", "", "SQLite run history path")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&f.tracing, "tracing", "", "span exporter: none, stdout or otlp")
}

func (f *runFlags) apply(cmd *cobra.Command, s config.Settings) config.Settings {
	if cmd.Flags().Changed("workers") {
		s.Workers = f.workers
	}
	if cmd.Flags().Changed("kube-context") {
		s.Kubectl.Context = f.kubeContext
	}
	if cmd.Flags().Changed("state-db") {
		s.StateDB = f.stateDB
	}
	if cmd.Flags().Changed("metrics-addr") {
		s.Telemetry.MetricsAddr = f.metricsAddr
	}
	if cmd.Flags().Changed("tracing") {
		s.Telemetry.Tracing = f.tracing
	}
	return s
}

// loadGraph loads and validates the graph file.
func loadGraph(path string) (*config.GraphFile, error) {
	gf, err := config.NewLoader().Load(path)
	if err != nil {
		return nil, err
	}
	gf.Settings = gf.Settings.WithDefaults()
	return gf, nil
}

// checkPolicy evaluates the policy gate. Warnings are logged; blocking
// violations are returned as an error.
func checkPolicy(ctx context.Context, settings config.Settings, specs []engine.ResourceSpec, action engine.Action, logger zerolog.Logger) (*policy.Result, error) {
	pe, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if len(settings.Policy.Paths) > 0 {
		if err := pe.LoadPolicies(ctx, settings.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return evaluatePolicy(ctx, pe, specs, action, logger)
}

func evaluatePolicy(ctx context.Context, pe *policy.Engine, specs []engine.ResourceSpec, action engine.Action, logger zerolog.Logger) (*policy.Result, error) {
	result, err := pe.Evaluate(ctx, specs, action)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		logger.Warn().Str("policy", w.Policy).Str("resource", w.Resource).Msg(w.Message)
	}
	return result, result.Err()
}

func telemetryConfig(version string, s config.Settings) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	switch level := zerolog.GlobalLevel(); level {
	case zerolog.TraceLevel, zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel, zerolog.ErrorLevel:
		cfg.Logging.Level = level.String()
	}
	cfg.Metrics.ListenAddress = s.Telemetry.MetricsAddr
	if s.Telemetry.Tracing != "" && s.Telemetry.Tracing != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = s.Telemetry.Tracing
		cfg.Tracing.Endpoint = s.Telemetry.OTLPEndpoint
	}
	return cfg
}

// runtime holds everything a run needs; Close releases it.
type runtime struct {
	graph    *config.GraphFile
	settings config.Settings
	tel      *telemetry.Telemetry
	router   *backends.Router
	store    *stores.SQLiteStore
	sched    *engine.Scheduler
	logger   zerolog.Logger

	// stop ends the metrics server.
	stop context.CancelFunc
}

// newRuntime builds the runtime of one run. On error everything started so
// far is released.
func newRuntime(ctx context.Context, version string, gf *config.GraphFile, settings config.Settings) (*runtime, error) {
	ctx, stop := context.WithCancel(ctx)
	rt := &runtime{graph: gf, settings: settings, logger: log.Logger, stop: stop}
	if err := rt.init(ctx, version); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) init(ctx context.Context, version string) error {
	settings, gf := rt.settings, rt.graph

	tel, err := telemetry.NewTelemetry(telemetryConfig(version, settings))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	rt.tel = tel
	rt.logger = tel.Logger.Zerolog()
	logger := tel.Logger.NewComponentLogger("backends").Zerolog()
	if _, err := tel.StartMetricsServer(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	hosts, err := settings.SSHConfigs()
	if err != nil {
		return engine.NewConfigurationError("invalid host settings", err)
	}
	rt.router = backends.NewRouter(backends.NewLocalRunner(logger), hosts, logger)
	runner := telemetry.InstrumentRunner(rt.router, rt.tel.Metrics)

	kubectl := backends.NewKubectl(runner, settings.Kubectl.Binary, settings.Kubectl.Context)
	kubectl.Host = settings.Kubectl.Host
	helm := backends.NewHelm(runner, settings.Helm.Binary, settings.Kubectl.Context)
	helm.Host = settings.Helm.Host

	timeout, interval, err := settings.ProbeDefaults()
	if err != nil {
		return engine.NewConfigurationError("invalid probe settings", err)
	}

	factory := tasks.NewFactory(tasks.Dependencies{
		Manifests: kubectl,
		Releases:  helm,
		Runner:    runner,
		Uploader:  rt.router,
		Prober:    backends.NewProber(kubectl, timeout, interval, logger),
		Renderer:  tasks.NewRenderer(settings.RenderDir),
		Logger:    logger,
	})

	schedCfg, err := settings.SchedulerConfig()
	if err != nil {
		return engine.NewConfigurationError("invalid scheduler settings", err)
	}

	opts := []engine.SchedulerOption{
		engine.WithObserver(rt.tel.Metrics),
		engine.WithTracer(rt.tel.Tracer.Tracer()),
	}
	if settings.StateDB != "" {
		store, err := openStore(ctx, settings.StateDB)
		if err != nil {
			return err
		}
		rt.store = store
		recorder := stores.NewRecorder(rt.store, gf.Source, rt.tel.Logger.NewComponentLogger("history").Zerolog())
		opts = append(opts, engine.WithObserver(recorder))
	}

	rt.sched = engine.NewScheduler(factory, rt.tel.Logger.NewComponentLogger("scheduler").Zerolog(), schedCfg, opts...)
	return nil
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return store, nil
}

// Run performs action on every resource of the graph.
func (rt *runtime) Run(ctx context.Context, action engine.Action) (*engine.RunResult, error) {
	return rt.sched.Run(rt.tel.WithContext(ctx), rt.graph.Resources, action)
}

// Close flushes telemetry and closes connections.
func (rt *runtime) Close() {
	if rt.stop != nil {
		rt.stop()
	}
	var errs []error
	if rt.router != nil {
		errs = append(errs, rt.router.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errs = append(errs, rt.tel.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn().Err(err).Msg("Failed to release run resources")
	}
}
