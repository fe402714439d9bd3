package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// ReleaseTask installs or upgrades a package-manager release.
type ReleaseTask struct {
	base
	backend engine.ReleaseBackend
	spec    engine.ReleaseSpec
}

// NewReleaseTask creates a task for a Release resource.
func NewReleaseTask(res *engine.Resource, deps Dependencies, outputs engine.OutputStore) *ReleaseTask {
	t := &ReleaseTask{
		base:    newBase(res, deps, outputs),
		backend: deps.Releases,
	}
	if res.Release != nil {
		t.spec = *res.Release
	}
	return t
}

// InstallOrUpgrade installs the release when absent and upgrades it when the
// backend reports drift from the resolved values.
func (t *ReleaseTask) InstallOrUpgrade(ctx context.Context) error {
	if t.backend == nil {
		return t.fail("no release backend configured", "install", nil)
	}

	rel, err := t.resolve()
	if err != nil {
		return err
	}

	revision, found, err := t.backend.CurrentRevision(ctx, rel.Name, rel.Namespace)
	if err != nil {
		return t.fail("failed to read release revision", "status", err)
	}

	if found {
		needed, err := t.backend.NeedsInstallOrUpgrade(ctx, rel)
		if err != nil {
			return t.fail("failed to diff release", "diff", err)
		}
		if !needed {
			t.logger.Info().
				Str("release", rel.Name).
				Int("revision", revision).
				Msg("Release up to date, skipping upgrade")
			return nil
		}
	}

	if err := t.backend.InstallOrUpgrade(ctx, rel); err != nil {
		return t.fail("failed to install release", "install", err)
	}
	t.logger.Info().
		Str("release", rel.Name).
		Str("chart", rel.Chart).
		Str("version", rel.Version).
		Bool("upgrade", found).
		Msg("Release installed")
	return nil
}

// Uninstall removes the release if it is installed.
func (t *ReleaseTask) Uninstall(ctx context.Context) error {
	if t.backend == nil {
		return t.fail("no release backend configured", "uninstall", nil)
	}

	_, found, err := t.backend.CurrentRevision(ctx, t.spec.Name, t.spec.Namespace)
	if err != nil {
		return t.fail("failed to read release revision", "status", err)
	}
	if !found {
		t.logger.Info().Str("release", t.spec.Name).Msg("Release not installed, nothing to uninstall")
		return nil
	}

	if err := t.backend.Uninstall(ctx, t.spec); err != nil {
		return t.fail("failed to uninstall release", "uninstall", err)
	}
	t.logger.Info().Str("release", t.spec.Name).Msg("Release uninstalled")
	return nil
}

// resolve returns a copy of the release spec whose values carry the supply
// outputs named by ValuesFrom.
func (t *ReleaseTask) resolve() (engine.ReleaseSpec, error) {
	rel := t.spec
	rel.Values = copyValues(t.spec.Values)
	if rel.Values == nil {
		rel.Values = make(map[string]interface{})
	}

	for _, ref := range t.spec.ValuesFrom {
		value, ok := t.outputs.Output(ref.Resource, ref.Key)
		if !ok {
			return rel, engine.NewProvisioningError(
				fmt.Sprintf("output %s.%s is not available", ref.Resource, ref.Key), nil,
			).WithCode(engine.ErrCodeMissingOutput).
				WithResource(t.res.Name).
				WithOperation("resolve").
				WithDetail("path", ref.Path)
		}
		if err := setPath(rel.Values, ref.Path, value); err != nil {
			return rel, t.fail("failed to substitute value", "resolve", err)
		}
	}
	return rel, nil
}

// copyValues deep-copies a values tree.
func copyValues(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyValues(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}

// setPath sets a dotted path such as "controller.service.loadBalancerIP",
// creating intermediate maps as needed.
func setPath(values map[string]interface{}, path, value string) error {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid values path %q", path)
		}
	}

	node := values
	for _, key := range parts[:len(parts)-1] {
		next, exists := node[key]
		if !exists {
			child := make(map[string]interface{})
			node[key] = child
			node = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("values path %q: %s is not a map", path, key)
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
	return nil
}
