package tasks

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// Dependencies are the backends tasks are built with.
type Dependencies struct {
	Manifests engine.ManifestBackend
	Releases  engine.ReleaseBackend
	Runner    engine.CommandRunner
	Uploader  engine.FileUploader
	Prober    engine.ReadinessProber
	Renderer  *Renderer
	Logger    zerolog.Logger
}

// Factory implements engine.TaskFactory.
type Factory struct {
	deps Dependencies
}

// NewFactory creates a task factory.
func NewFactory(deps Dependencies) *Factory {
	if deps.Renderer == nil {
		deps.Renderer = NewRenderer("")
	}
	deps.Logger = deps.Logger.With().Str("component", "task").Logger()
	return &Factory{deps: deps}
}

// NewTask returns the task variant for the resource's type.
func (f *Factory) NewTask(res *engine.Resource, outputs engine.OutputStore) (engine.Task, error) {
	if res == nil {
		return nil, fmt.Errorf("resource is nil")
	}

	switch res.Type {
	case engine.ResourceTypeManifest:
		return NewManifestTask(res, f.deps, outputs), nil
	case engine.ResourceTypeRelease:
		return NewReleaseTask(res, f.deps, outputs), nil
	case engine.ResourceTypeCommand:
		return NewCommandTask(res, f.deps, outputs), nil
	case engine.ResourceTypeSecret:
		return NewSecretTask(res, f.deps, outputs), nil
	case engine.ResourceTypeNamespace:
		return NewNamespaceTask(res, f.deps, outputs), nil
	default:
		return nil, fmt.Errorf("no task for resource type %q", res.Type)
	}
}
