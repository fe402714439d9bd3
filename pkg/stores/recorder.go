package stores

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// writeTimeout bounds each history write.
const writeTimeout = 5 * time.Second

// Recorder persists runs and resource events as an engine.Observer.
// Persistence failures are logged and never fail the run.
type Recorder struct {
	store     Store
	graphPath string
	logger    zerolog.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to store. graphPath is stored
// with every run.
func NewRecorder(store Store, graphPath string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:     store,
		graphPath: graphPath,
		logger:    logger.With().Str("component", "recorder").Logger(),
		started:   make(map[string]time.Time),
	}
}

// writeContext detaches ctx from cancellation so a cancelled run is still recorded.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// RunStarted implements engine.Observer.
func (r *Recorder) RunStarted(ctx context.Context, runID string, action engine.Action, workers int) {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	err := r.store.CreateRun(ctx, &Run{
		ID:        runID,
		Action:    action,
		Status:    engine.RunStatusRunning,
		Workers:   workers,
		GraphPath: r.graphPath,
		StartedAt: time.Now(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run start")
	}
}

// ResourceStarted implements engine.Observer.
func (r *Recorder) ResourceStarted(ctx context.Context, runID string, res *engine.Resource) {
	r.mu.Lock()
	r.started[runID+"/"+res.Name] = time.Now()
	r.mu.Unlock()
}

// ResourceFinished implements engine.Observer.
func (r *Recorder) ResourceFinished(ctx context.Context, runID string, res *engine.Resource, duration time.Duration, err error) {
	completed := time.Now()
	key := runID + "/" + res.Name
	r.mu.Lock()
	started, ok := r.started[key]
	delete(r.started, key)
	r.mu.Unlock()
	if !ok {
		started = completed.Add(-duration)
	}

	event := &ResourceEvent{
		RunID:       runID,
		Resource:    res.Name,
		Type:        res.Type,
		Status:      EventStatusDone,
		StartedAt:   started,
		CompletedAt: completed,
	}
	if err != nil {
		msg := err.Error()
		event.Status = EventStatusFailed
		event.Error = &msg
	}

	ctx, cancel := writeContext(ctx)
	defer cancel()
	if err := r.store.AppendResourceEvent(ctx, event); err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Str("resource", res.Name).Msg("Failed to record resource event")
	}
}

// RunFinished implements engine.Observer.
func (r *Recorder) RunFinished(ctx context.Context, result *engine.RunResult) {
	ctx, cancel := writeContext(ctx)
	defer cancel()
	if err := r.store.FinishRun(ctx, result); err != nil {
		r.logger.Warn().Err(err).Str("run_id", result.ID).Msg("Failed to record run result")
	}
}
