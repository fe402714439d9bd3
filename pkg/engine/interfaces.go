package engine

import (
	"context"
	"os"
	"time"
)

// Task is the provisioning behavior bound to one resource.
// Every resource type has exactly one implementation.
type Task interface {
	// InstallOrUpgrade brings the resource to its declared state.
	InstallOrUpgrade(ctx context.Context) error

	// Uninstall removes the resource.
	Uninstall(ctx context.Context) error

	// WaitForCompletion blocks until the resource's probes are satisfied for the action.
	WaitForCompletion(ctx context.Context, action Action) error

	// CollectInformation runs supply commands and publishes their outputs.
	CollectInformation(ctx context.Context) error
}

// TaskFactory builds the task for a resource of a run.
// Outputs gives the task access to supply outputs of other resources.
type TaskFactory interface {
	NewTask(res *Resource, outputs OutputStore) (Task, error)
}

// OutputStore stores supply outputs of resources.
// ResourceGraph implements it.
type OutputStore interface {
	// SetOutput stores a value produced by resource.
	SetOutput(resource, key, value string)

	// Output returns a value produced by resource.
	Output(resource, key string) (string, bool)
}

// ManifestBackend applies and removes declarative manifest files.
type ManifestBackend interface {
	// Apply applies the files.
	Apply(ctx context.Context, files []string) error

	// Remove deletes the objects described by the files.
	Remove(ctx context.Context, files []string) error

	// NeedsApply reports whether the current state differs from the files.
	NeedsApply(ctx context.Context, files []string) (bool, error)
}

// ReleaseBackend manages package-manager releases.
type ReleaseBackend interface {
	// InstallOrUpgrade installs the release or upgrades it in place.
	InstallOrUpgrade(ctx context.Context, rel ReleaseSpec) error

	// Uninstall removes the release.
	Uninstall(ctx context.Context, rel ReleaseSpec) error

	// CurrentRevision returns the installed revision; found is false when absent.
	CurrentRevision(ctx context.Context, name, namespace string) (revision int, found bool, err error)

	// NeedsInstallOrUpgrade reports whether the installed release differs from rel.
	NeedsInstallOrUpgrade(ctx context.Context, rel ReleaseSpec) (bool, error)
}

// CommandRunner runs shell commands on the local machine or a named host.
type CommandRunner interface {
	// RunCommand runs cmd on host ("" for local). When raiseOnFailure is set,
	// a non-zero exit is returned as an error alongside the result.
	RunCommand(ctx context.Context, cmd, host string, raiseOnFailure bool) (CommandResult, error)
}

// FileUploader copies local files to the host a command runs on.
type FileUploader interface {
	// Upload copies localPath to remotePath on host ("" for local).
	Upload(ctx context.Context, localPath, remotePath, host string, mode os.FileMode) error
}

// ReadinessProber waits for readiness probes. Timeouts are the prober's
// concern and are reported as readiness timeout errors.
type ReadinessProber interface {
	// WaitForReady waits until the probe target is ready.
	WaitForReady(ctx context.Context, probe Probe) error

	// WaitForDeleted waits until the probe target no longer exists.
	WaitForDeleted(ctx context.Context, probe Probe) error

	// WaitForDesiredValue waits until the value at the probe path equals the probe value.
	WaitForDesiredValue(ctx context.Context, probe Probe) error
}

// Observer receives run lifecycle notifications from the scheduler.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	RunStarted(ctx context.Context, runID string, action Action, workers int)
	ResourceStarted(ctx context.Context, runID string, res *Resource)
	ResourceFinished(ctx context.Context, runID string, res *Resource, duration time.Duration, err error)
	RunFinished(ctx context.Context, result *RunResult)
}
