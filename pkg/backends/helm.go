package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/provisioner/pkg/engine"
)

const valuesDelimiter = "PROVISIONER_VALUES_EOF"

// Helm manages releases with the helm CLI.
type Helm struct {
	runner engine.CommandRunner

	// Binary is the helm executable (default "helm").
	Binary string

	// KubeContext selects a kubeconfig context; empty uses the current one.
	KubeContext string

	// Host is the host alias helm runs on.
	Host string
}

// NewHelm creates a helm backend running through runner.
func NewHelm(runner engine.CommandRunner, binary, kubeContext string) *Helm {
	if binary == "" {
		binary = "helm"
	}
	return &Helm{runner: runner, Binary: binary, KubeContext: kubeContext}
}

func (h *Helm) command(args ...string) string {
	all := make([]string, 0, len(args)+3)
	all = append(all, h.Binary)
	all = append(all, args...)
	if h.KubeContext != "" {
		all = append(all, "--kube-context", h.KubeContext)
	}
	return join(all...)
}

// InstallOrUpgrade runs helm upgrade --install, passing values on stdin.
func (h *Helm) InstallOrUpgrade(ctx context.Context, rel engine.ReleaseSpec) error {
	args := []string{"upgrade", "--install", rel.Name, rel.Chart,
		"--namespace", rel.Namespace, "--create-namespace"}
	if rel.Version != "" {
		args = append(args, "--version", rel.Version)
	}
	if rel.Repo != "" {
		args = append(args, "--repo", rel.Repo)
	}
	args = append(args, "--values", "-")

	values := rel.Values
	if values == nil {
		values = map[string]interface{}{}
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return engine.NewProvisioningError("failed to encode release values", err)
	}

	cmd := fmt.Sprintf("%s <<'%s'\n%s%s", h.command(args...), valuesDelimiter, data, valuesDelimiter)
	_, err = h.runner.RunCommand(ctx, cmd, h.Host, true)
	return err
}

// Uninstall runs helm uninstall.
func (h *Helm) Uninstall(ctx context.Context, rel engine.ReleaseSpec) error {
	_, err := h.runner.RunCommand(ctx, h.command("uninstall", rel.Name, "--namespace", rel.Namespace), h.Host, true)
	return err
}

// CurrentRevision reads the release revision from helm status.
func (h *Helm) CurrentRevision(ctx context.Context, name, namespace string) (int, bool, error) {
	result, err := h.runner.RunCommand(ctx, h.command("status", name, "--namespace", namespace, "--output", "json"), h.Host, false)
	if err != nil {
		return 0, false, err
	}
	if result.ExitCode != 0 {
		if strings.Contains(strings.ToLower(result.Stderr), "not found") {
			return 0, false, nil
		}
		return 0, false, engine.NewProvisioningError(
			fmt.Sprintf("helm status exited with status %d", result.ExitCode), nil).
			WithCode(engine.ErrCodeCommandFailed).
			WithDetail("release", name).
			WithDetail("stderr", strings.TrimSpace(result.Stderr))
	}

	var status struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &status); err != nil {
		return 0, false, engine.NewProvisioningError("failed to decode helm status", err).
			WithDetail("release", name)
	}
	return status.Version, true, nil
}

// helmRelease is one entry of helm list -o json.
type helmRelease struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Revision  string `json:"revision"`
	Status    string `json:"status"`
	Chart     string `json:"chart"`
}

// NeedsInstallOrUpgrade compares the deployed chart, version, status and
// user-supplied values with rel.
func (h *Helm) NeedsInstallOrUpgrade(ctx context.Context, rel engine.ReleaseSpec) (bool, error) {
	result, err := h.runner.RunCommand(ctx,
		h.command("list", "--namespace", rel.Namespace, "--filter", "^"+rel.Name+"$", "--all", "--output", "json"),
		h.Host, true)
	if err != nil {
		return false, err
	}

	var releases []helmRelease
	if err := json.Unmarshal([]byte(result.Stdout), &releases); err != nil {
		return false, engine.NewProvisioningError("failed to decode helm list", err).
			WithDetail("release", rel.Name)
	}

	var current *helmRelease
	for i := range releases {
		if releases[i].Name == rel.Name {
			current = &releases[i]
			break
		}
	}
	if current == nil || current.Status != "deployed" {
		return true, nil
	}
	if !chartMatches(current.Chart, rel.Chart, rel.Version) {
		return true, nil
	}

	result, err = h.runner.RunCommand(ctx,
		h.command("get", "values", rel.Name, "--namespace", rel.Namespace, "--output", "json"),
		h.Host, true)
	if err != nil {
		return false, err
	}
	deployed, err := normalizeValues([]byte(result.Stdout))
	if err != nil {
		return false, engine.NewProvisioningError("failed to decode release values", err).
			WithDetail("release", rel.Name)
	}
	desiredJSON, err := json.Marshal(rel.Values)
	if err != nil {
		return false, engine.NewProvisioningError("failed to encode release values", err)
	}
	desired, err := normalizeValues(desiredJSON)
	if err != nil {
		return false, engine.NewProvisioningError("failed to encode release values", err)
	}

	return !reflect.DeepEqual(deployed, desired), nil
}

// chartMatches checks a helm list chart column ("name-version") against a
// chart reference and optional version.
func chartMatches(listed, chart, version string) bool {
	name := strings.TrimSuffix(path.Base(chart), ".tgz")
	if version != "" {
		return listed == name+"-"+strings.TrimPrefix(version, "v") || listed == name+"-"+version
	}
	return strings.HasPrefix(listed, name+"-")
}

// normalizeValues decodes JSON values so that both sides of a comparison use
// the same number and map types. null decodes to an empty map.
func normalizeValues(data []byte) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]interface{}{}
	}
	return values, nil
}
