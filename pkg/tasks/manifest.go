package tasks

import (
	"context"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// ManifestTask applies a set of manifest files.
type ManifestTask struct {
	base
	backend engine.ManifestBackend
	files   []string
}

// NewManifestTask creates a task for a Manifest resource.
func NewManifestTask(res *engine.Resource, deps Dependencies, outputs engine.OutputStore) *ManifestTask {
	t := &ManifestTask{
		base:    newBase(res, deps, outputs),
		backend: deps.Manifests,
	}
	if res.Manifest != nil {
		t.files = res.Manifest.Files
	}
	return t
}

// InstallOrUpgrade applies the files unless the backend reports no drift.
func (t *ManifestTask) InstallOrUpgrade(ctx context.Context) error {
	if t.backend == nil {
		return t.fail("no manifest backend configured", "apply", nil)
	}

	needed, err := t.backend.NeedsApply(ctx, t.files)
	if err != nil {
		return t.fail("failed to diff manifests", "diff", err)
	}
	if !needed {
		t.logger.Info().Strs("files", t.files).Msg("Manifests up to date, skipping apply")
		return nil
	}

	if err := t.backend.Apply(ctx, t.files); err != nil {
		return t.fail("failed to apply manifests", "apply", err)
	}
	t.logger.Info().Strs("files", t.files).Msg("Manifests applied")
	return nil
}

// Uninstall removes the objects described by the files.
func (t *ManifestTask) Uninstall(ctx context.Context) error {
	if t.backend == nil {
		return t.fail("no manifest backend configured", "remove", nil)
	}
	if err := t.backend.Remove(ctx, t.files); err != nil {
		return t.fail("failed to remove manifests", "remove", err)
	}
	t.logger.Info().Strs("files", t.files).Msg("Manifests removed")
	return nil
}
