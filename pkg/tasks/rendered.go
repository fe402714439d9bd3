package tasks

import (
	"context"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// renderedTask renders its manifest on demand and then behaves like a
// ManifestTask. Secret and Namespace resources use it.
type renderedTask struct {
	*ManifestTask
	render func() (string, error)

	// renderRef, when set, renders the manifest used for removal.
	renderRef func() (string, error)
}

// NewSecretTask creates a task for a Secret resource.
func NewSecretTask(res *engine.Resource, deps Dependencies, outputs engine.OutputStore) engine.Task {
	var spec engine.SecretSpec
	if res.Secret != nil {
		spec = *res.Secret
	}
	return &renderedTask{
		ManifestTask: NewManifestTask(res, deps, outputs),
		render: func() (string, error) {
			return deps.Renderer.Secret(res.Name, spec)
		},
		renderRef: func() (string, error) {
			return deps.Renderer.SecretRef(res.Name, spec)
		},
	}
}

// NewNamespaceTask creates a task for a Namespace resource.
func NewNamespaceTask(res *engine.Resource, deps Dependencies, outputs engine.OutputStore) engine.Task {
	var spec engine.NamespaceSpec
	if res.Namespace != nil {
		spec = *res.Namespace
	}
	return &renderedTask{
		ManifestTask: NewManifestTask(res, deps, outputs),
		render: func() (string, error) {
			return deps.Renderer.Namespace(res.Name, spec)
		},
	}
}

func (t *renderedTask) prepare(render func() (string, error)) error {
	path, err := render()
	if err != nil {
		return t.fail("failed to render manifest", "render", err)
	}
	t.files = []string{path}
	return nil
}

func (t *renderedTask) InstallOrUpgrade(ctx context.Context) error {
	if err := t.prepare(t.render); err != nil {
		return err
	}
	return t.ManifestTask.InstallOrUpgrade(ctx)
}

func (t *renderedTask) Uninstall(ctx context.Context) error {
	render := t.render
	if t.renderRef != nil {
		render = t.renderRef
	}
	if err := t.prepare(render); err != nil {
		return err
	}
	return t.ManifestTask.Uninstall(ctx)
}
