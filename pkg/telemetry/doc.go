// Package telemetry provides the observability stack of the provisioner.
//
// It bundles structured logging (zerolog), tracing (OpenTelemetry) and
// Prometheus metrics behind a single Telemetry value built from Config.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	sched := engine.NewScheduler(factory, log, engine.DefaultSchedulerConfig(),
//	    engine.WithObserver(tel.Metrics),
//	    engine.WithTracer(tel.Tracer.Tracer()),
//	)
//
// # Logging
//
// Each component logs through a zerolog logger tagged with its name:
//
//	log := tel.Logger.NewComponentLogger("scheduler").Zerolog()
//
// # Metrics
//
// Metrics implements engine.Observer and records runs and resource tasks.
// Backend commands are recorded by wrapping the command runner with
// InstrumentRunner. When MetricsConfig.ListenAddress is set,
// StartMetricsServer serves the registry over HTTP.
//
// # Tracing
//
// The scheduler opens a span per run and per resource task on the tracer
// returned by Tracer.Tracer. Exporters are stdout and OTLP over gRPC; with
// tracing disabled the tracer is a no-op.
package telemetry
