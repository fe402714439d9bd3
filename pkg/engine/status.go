package engine

import (
	"encoding/json"
	"fmt"
)

// ResourceStatus represents the scheduling status of a resource within a run.
type ResourceStatus string

const (
	// StatusPending indicates the resource has not been picked up by a worker.
	StatusPending ResourceStatus = "pending"

	// StatusExecuting indicates a worker is currently performing the resource's task.
	StatusExecuting ResourceStatus = "executing"

	// StatusDone indicates the resource's task completed successfully.
	StatusDone ResourceStatus = "done"
)

// IsSettled returns true if the resource can no longer be scheduled.
func (s ResourceStatus) IsSettled() bool {
	return s == StatusExecuting || s == StatusDone
}

// Validate checks if the resource status is valid.
func (s ResourceStatus) Validate() error {
	switch s {
	case StatusPending, StatusExecuting, StatusDone:
		return nil
	default:
		return fmt.Errorf("invalid resource status: %s", s)
	}
}

// next returns the only status a resource may move to from s.
func (s ResourceStatus) next() (ResourceStatus, bool) {
	switch s {
	case StatusPending:
		return StatusExecuting, true
	case StatusExecuting:
		return StatusDone, true
	default:
		return "", false
	}
}

// Action is the operation a run performs on every resource of the graph.
type Action string

const (
	// ActionInstallOrUpgrade brings every resource to its declared state.
	ActionInstallOrUpgrade Action = "install-or-upgrade"

	// ActionUninstall removes every resource, dependents first.
	ActionUninstall Action = "uninstall"
)

// Validate checks if the action is valid.
func (a Action) Validate() error {
	switch a {
	case ActionInstallOrUpgrade, ActionUninstall:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", a)
	}
}

// RunStatus represents the overall outcome of a run.
type RunStatus string

const (
	// RunStatusRunning indicates workers are still active.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every resource reached Done.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the abort latch was set by a failing resource.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled indicates the run's context was cancelled.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}
