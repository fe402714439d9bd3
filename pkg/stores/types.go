package stores

import (
	"context"
	"time"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// EventStatus is the outcome of a resource task.
type EventStatus string

const (
	EventStatusDone   EventStatus = "done"
	EventStatusFailed EventStatus = "failed"
)

// Run is a recorded run.
type Run struct {
	ID          string           `json:"id"`
	Action      engine.Action    `json:"action"`
	Status      engine.RunStatus `json:"status"`
	Workers     int              `json:"workers"`
	GraphPath   string           `json:"graph_path"`
	AbortReason *string          `json:"abort_reason,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ResourceEvent records one resource task of a run.
type ResourceEvent struct {
	ID          int64               `json:"id"`
	RunID       string              `json:"run_id"`
	Resource    string              `json:"resource"`
	Type        engine.ResourceType `json:"type"`
	Status      EventStatus         `json:"status"`
	Error       *string             `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Duration returns how long the task took.
func (e *ResourceEvent) Duration() time.Duration {
	return e.CompletedAt.Sub(e.StartedAt)
}

// Store defines the interface for run history persistence.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, result *engine.RunResult) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Resource event operations
	AppendResourceEvent(ctx context.Context, event *ResourceEvent) error
	ListResourceEvents(ctx context.Context, runID string) ([]*ResourceEvent, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
