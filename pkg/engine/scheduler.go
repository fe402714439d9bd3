package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SchedulerConfig contains configuration for the worker pool.
type SchedulerConfig struct {
	// Workers is the number of concurrent workers.
	// Default: 4
	Workers int

	// PollInterval is how long an idle worker sleeps before looking for work again.
	// Default: 1 second
	PollInterval time.Duration

	// WaitLogEvery emits a "waiting" log line every N idle iterations.
	// Default: 30
	WaitLogEvery int
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:      4,
		PollInterval: time.Second,
		WaitLogEvery: 30,
	}
}

// Scheduler runs the tasks of a resource graph on a fixed pool of workers.
// Workers pick ready resources under the graph lock and perform their tasks
// outside of it. The first failure latches an abort that stops all workers
// from picking new work; tasks already executing run to completion.
type Scheduler struct {
	config    SchedulerConfig
	factory   TaskFactory
	logger    zerolog.Logger
	tracer    trace.Tracer
	observers []Observer
}

// SchedulerOption configures optional scheduler collaborators.
type SchedulerOption func(*Scheduler)

// WithObserver registers an observer notified of run and resource lifecycle events.
func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithTracer sets the tracer used for run and resource spans.
func WithTracer(t trace.Tracer) SchedulerOption {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewScheduler creates a new scheduler.
func NewScheduler(factory TaskFactory, logger zerolog.Logger, config SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.WaitLogEvery <= 0 {
		config.WaitLogEvery = defaults.WaitLogEvery
	}

	s := &Scheduler{
		config:  config,
		factory: factory,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		tracer:  otel.Tracer("github.com/openfroyo/provisioner/pkg/engine"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run is the shared state of one Run call.
type run struct {
	id     string
	graph  *ResourceGraph
	latch  *AbortLatch
	logger zerolog.Logger
}

// abort latches the run under the graph lock, so a worker holding the lock
// either sees the latch or finishes its pick before the latch is set.
func (r *run) abort(reason string, err error) {
	r.graph.Lock()
	defer r.graph.Unlock()
	r.latch.Set(reason, err)
}

// Run validates specs into a graph and performs action on every resource.
// A malformed graph is returned as a configuration error before any worker starts.
func (s *Scheduler) Run(ctx context.Context, specs []ResourceSpec, action Action) (*RunResult, error) {
	g, err := NewResourceGraph(specs, action)
	if err != nil {
		return nil, err
	}
	return s.RunGraph(ctx, g)
}

// RunGraph performs the graph's action on every resource. It returns once
// every worker has stopped; the error is non-nil when the abort latch was set.
func (s *Scheduler) RunGraph(ctx context.Context, g *ResourceGraph) (*RunResult, error) {
	if g == nil {
		return nil, NewConfigurationError("graph is nil", nil)
	}
	if s.factory == nil {
		return nil, NewConfigurationError("scheduler has no task factory", nil).WithCode(ErrCodeInternal)
	}
	for name, status := range g.Snapshot() {
		if status != StatusPending {
			return nil, NewConfigurationError("graph has already been run", nil).
				WithCode(ErrCodeInternal).WithResource(name)
		}
	}

	r := &run{
		id:    uuid.New().String(),
		graph: g,
		latch: NewAbortLatch(),
	}
	r.logger = s.logger.With().
		Str("run_id", r.id).
		Str("action", string(g.Action())).
		Logger()

	ctx, span := s.tracer.Start(ctx, "run.execute", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("run.action", string(g.Action())),
		attribute.Int("run.workers", s.config.Workers),
		attribute.Int("run.resources", g.Len()),
	))
	defer span.End()

	startedAt := time.Now()
	for _, o := range s.observers {
		o.RunStarted(ctx, r.id, g.Action(), s.config.Workers)
	}
	r.logger.Info().
		Int("workers", s.config.Workers).
		Int("resources", g.Len()).
		Msg("Run started")

	var wg conc.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		worker := i
		wg.Go(func() {
			s.work(ctx, r, worker)
		})
	}
	wg.Wait()

	completedAt := time.Now()
	result := &RunResult{
		ID:          r.id,
		Action:      g.Action(),
		Status:      RunStatusSucceeded,
		Workers:     s.config.Workers,
		Statuses:    g.Snapshot(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}

	var runErr error
	if r.latch.IsSet() {
		result.AbortReason = r.latch.Reason()
		result.Status = RunStatusFailed
		cause := r.latch.Err()
		if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
			result.Status = RunStatusCancelled
		}
		runErr = fmt.Errorf("run %s aborted: %w", r.id, cause)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, result.AbortReason)
	}

	for _, o := range s.observers {
		o.RunFinished(ctx, result)
	}

	event := r.logger.Info()
	if runErr != nil {
		event = r.logger.Error().Str("abort_reason", result.AbortReason)
	}
	event.
		Str("status", string(result.Status)).
		Dur("duration", result.Duration).
		Msg("Run finished")

	return result, runErr
}

// work is the loop of one worker.
func (s *Scheduler) work(ctx context.Context, r *run, worker int) {
	log := r.logger.With().Int("worker", worker).Logger()
	idle := 0

	for {
		if err := ctx.Err(); err != nil {
			r.abort("cancelled", err)
			log.Warn().Err(err).Msg("Context done, worker stopping")
			return
		}

		r.graph.Lock()
		if r.latch.IsSet() {
			r.graph.Unlock()
			log.Warn().Str("reason", r.latch.Reason()).Msg("Run aborted, worker stopping")
			return
		}
		if r.graph.AllSettled() {
			r.graph.Unlock()
			log.Debug().Msg("Nothing left to schedule, worker stopping")
			return
		}
		res := r.graph.TakeReady()
		r.graph.Unlock()

		if res == nil {
			idle++
			if idle%s.config.WaitLogEvery == 0 {
				log.Info().Int("iterations", idle).Msg("Waiting for dependencies to complete")
			}
			s.sleep(ctx)
			continue
		}
		idle = 0

		if err := s.execute(ctx, r, res); err != nil {
			log.Error().
				Err(err).
				Str("resource", res.Name).
				Str("type", string(res.Type)).
				Strs("depends_on", res.DependsOn).
				Msg("Resource failed, aborting run")
			r.abort(fmt.Sprintf("resource %s failed: %v", res.Name, err), err)
			return
		}

		r.graph.Lock()
		err := r.graph.MarkDone(res.Name)
		if err != nil {
			r.latch.Set(fmt.Sprintf("scheduler error on %s", res.Name), err)
		}
		r.graph.Unlock()
		if err != nil {
			log.Error().Err(err).Str("resource", res.Name).Msg("Failed to mark resource done")
			return
		}
	}
}

// sleep waits one poll interval or until ctx is done.
func (s *Scheduler) sleep(ctx context.Context) {
	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// execute builds and performs the task of res. Panics are converted to errors
// so a misbehaving task still latches the abort.
func (s *Scheduler) execute(ctx context.Context, r *run, res *Resource) (err error) {
	action := r.graph.Action()
	ctx, span := s.tracer.Start(ctx, "resource.perform", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("resource.name", res.Name),
		attribute.String("resource.type", string(res.Type)),
		attribute.String("run.action", string(action)),
	))
	startedAt := time.Now()

	for _, o := range s.observers {
		o.ResourceStarted(ctx, r.id, res)
	}
	r.logger.Info().
		Str("resource", res.Name).
		Str("type", string(res.Type)).
		Msg("Resource started")

	defer func() {
		if p := recover(); p != nil {
			err = NewProvisioningError(fmt.Sprintf("task panicked: %v", p), nil).
				WithCode(ErrCodeInternal).WithResource(res.Name).WithOperation(string(action))
		}

		duration := time.Since(startedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			r.logger.Info().
				Str("resource", res.Name).
				Dur("duration", duration).
				Msg("Resource done")
		}
		span.End()

		for _, o := range s.observers {
			o.ResourceFinished(ctx, r.id, res, duration, err)
		}
	}()

	task, err := s.factory.NewTask(res, r.graph)
	if err != nil {
		return NewProvisioningError("failed to build task", err).
			WithCode(ErrCodeInternal).WithResource(res.Name).WithOperation(string(action))
	}

	if err := Perform(ctx, task, action); err != nil {
		var engineErr *EngineError
		if errors.As(err, &engineErr) {
			return err
		}
		return NewProvisioningError("task failed", err).
			WithResource(res.Name).WithOperation(string(action))
	}
	return nil
}
