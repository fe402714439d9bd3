package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ResourceType selects the task variant that provisions a resource.
type ResourceType string

const (
	// ResourceTypeManifest applies a set of declarative manifest files.
	ResourceTypeManifest ResourceType = "Manifest"

	// ResourceTypeRelease installs or upgrades a package-manager release.
	ResourceTypeRelease ResourceType = "Release"

	// ResourceTypeCommand runs shell commands guarded by check commands.
	ResourceTypeCommand ResourceType = "Command"

	// ResourceTypeSecret materializes a secret object.
	ResourceTypeSecret ResourceType = "Secret"

	// ResourceTypeNamespace creates a namespace with labels.
	ResourceTypeNamespace ResourceType = "Namespace"
)

// Validate checks if the resource type is valid.
func (t ResourceType) Validate() error {
	switch t {
	case ResourceTypeManifest, ResourceTypeRelease, ResourceTypeCommand,
		ResourceTypeSecret, ResourceTypeNamespace:
		return nil
	default:
		return fmt.Errorf("invalid resource type: %s", t)
	}
}

// ResourceSpec is the immutable definition of a resource as loaded from a graph file.
type ResourceSpec struct {
	// Name uniquely identifies the resource within its graph.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Type selects the task variant.
	Type ResourceType `json:"type" yaml:"type" validate:"required,oneof=Manifest Release Command Secret Namespace"`

	// DependsOn lists resources that must be Done before this one starts.
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty" validate:"dive,required"`

	// Host is the host alias commands run on; empty means the local machine.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	Manifest  *ManifestSpec  `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Release   *ReleaseSpec   `json:"release,omitempty" yaml:"release,omitempty"`
	Command   *CommandSpec   `json:"command,omitempty" yaml:"command,omitempty"`
	Secret    *SecretSpec    `json:"secret,omitempty" yaml:"secret,omitempty"`
	Namespace *NamespaceSpec `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	// Probes are awaited after install or uninstall.
	Probes []Probe `json:"probes,omitempty" yaml:"probes,omitempty" validate:"dive"`

	// Supply maps output names to commands whose stdout becomes the output value.
	Supply map[string]string `json:"supply,omitempty" yaml:"supply,omitempty" validate:"dive,keys,required,endkeys,required"`
}

// CheckPayload verifies that exactly the payload matching Type is set.
func (s *ResourceSpec) CheckPayload() error {
	set := map[ResourceType]bool{
		ResourceTypeManifest:  s.Manifest != nil,
		ResourceTypeRelease:   s.Release != nil,
		ResourceTypeCommand:   s.Command != nil,
		ResourceTypeSecret:    s.Secret != nil,
		ResourceTypeNamespace: s.Namespace != nil,
	}
	if err := s.Type.Validate(); err != nil {
		return err
	}
	if !set[s.Type] {
		return fmt.Errorf("resource of type %s has no %s payload", s.Type, s.Type)
	}
	for t, ok := range set {
		if ok && t != s.Type {
			return fmt.Errorf("resource of type %s also declares a %s payload", s.Type, t)
		}
	}
	return nil
}

// ManifestSpec lists the manifest files of a Manifest resource.
type ManifestSpec struct {
	Files []string `json:"files" yaml:"files" validate:"required,min=1,dive,required"`
}

// ReleaseSpec describes a package-manager release.
type ReleaseSpec struct {
	Name      string `json:"name" yaml:"name" validate:"required"`
	Namespace string `json:"namespace" yaml:"namespace" validate:"required"`
	Chart     string `json:"chart" yaml:"chart" validate:"required"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Repo      string `json:"repo,omitempty" yaml:"repo,omitempty"`

	// Values is the values object passed to the release.
	Values map[string]interface{} `json:"values,omitempty" yaml:"values,omitempty"`

	// ValuesFrom substitutes supply outputs of other resources into Values.
	ValuesFrom []ValueRef `json:"valuesFrom,omitempty" yaml:"valuesFrom,omitempty" validate:"dive"`
}

// ValueRef points a dotted values path at another resource's supply output.
type ValueRef struct {
	Path     string `json:"path" yaml:"path" validate:"required"`
	Resource string `json:"resource" yaml:"resource" validate:"required"`
	Key      string `json:"key" yaml:"key" validate:"required"`
}

// CommandSpec describes a shell-driven install.
// A check command exiting 0 means the corresponding step is already satisfied.
type CommandSpec struct {
	Install        string `json:"install" yaml:"install" validate:"required"`
	InstallCheck   string `json:"installCheck,omitempty" yaml:"installCheck,omitempty"`
	Uninstall      string `json:"uninstall,omitempty" yaml:"uninstall,omitempty"`
	UninstallCheck string `json:"uninstallCheck,omitempty" yaml:"uninstallCheck,omitempty"`

	// Fallback runs when Install exits non-zero; the install then succeeds if it does.
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty"`

	// UninstallFallback runs when Uninstall exits non-zero.
	UninstallFallback string `json:"uninstallFallback,omitempty" yaml:"uninstallFallback,omitempty"`

	// Uploads are copied to the resource's host before Install runs.
	Uploads []FileUpload `json:"uploads,omitempty" yaml:"uploads,omitempty" validate:"dive"`
}

// FileUpload copies a local file to the host a command runs on.
type FileUpload struct {
	Source      string `json:"source" yaml:"source" validate:"required"`
	Destination string `json:"destination" yaml:"destination" validate:"required"`

	// Mode is an octal permission string such as "0755".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,numeric"`
}

// FileMode parses Mode; an empty Mode yields 0.
func (u FileUpload) FileMode() (os.FileMode, error) {
	if u.Mode == "" {
		return 0, nil
	}
	m, err := strconv.ParseUint(u.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", u.Mode, err)
	}
	return os.FileMode(m), nil
}

// SecretKind selects how a Secret resource is rendered.
type SecretKind string

const (
	// SecretKindDockerRegistry renders a registry auth secret.
	SecretKindDockerRegistry SecretKind = "docker-registry"

	// SecretKindGeneric renders files as secret data.
	SecretKindGeneric SecretKind = "generic"
)

// SecretSpec describes a secret to materialize.
type SecretSpec struct {
	Name      string     `json:"name" yaml:"name" validate:"required"`
	Namespace string     `json:"namespace" yaml:"namespace" validate:"required"`
	Kind      SecretKind `json:"kind" yaml:"kind" validate:"required,oneof=docker-registry generic"`

	Registry *RegistryAuth `json:"registry,omitempty" yaml:"registry,omitempty" validate:"required_if=Kind docker-registry"`

	// Files maps secret keys to local file paths.
	Files map[string]string `json:"files,omitempty" yaml:"files,omitempty" validate:"required_if=Kind generic"`

	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// RegistryAuth holds container registry credentials.
type RegistryAuth struct {
	Server   string `json:"server" yaml:"server" validate:"required"`
	Username string `json:"username" yaml:"username" validate:"required"`
	Password string `json:"password" yaml:"password" validate:"required"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
}

// NamespaceSpec describes a namespace to create.
type NamespaceSpec struct {
	Name        string            `json:"name" yaml:"name" validate:"required"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// ProbeKind selects the readiness wait performed for a probe.
type ProbeKind string

const (
	// ProbeReady waits until the target is ready (install) or deleted (uninstall).
	ProbeReady ProbeKind = "ready"

	// ProbeValue waits until the value at Path equals Value. Skipped on uninstall.
	ProbeValue ProbeKind = "value"
)

// Probe is a readiness condition awaited after a task's install or uninstall.
type Probe struct {
	Kind      ProbeKind `json:"kind" yaml:"kind" validate:"required,oneof=ready value"`
	Target    string    `json:"target" yaml:"target" validate:"required"`
	Namespace string    `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	// Condition is the status condition checked by ready probes (default "Ready").
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Path is a jsonpath expression evaluated by value probes.
	Path  string `json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Kind value"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Host is the host alias the probe commands run on.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Timeout and Interval are Go duration strings interpreted by the prober.
	Timeout  string `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"omitempty,duration"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty" validate:"omitempty,duration"`
}

// Durations parses Timeout and Interval, falling back to the given defaults.
func (p Probe) Durations(defTimeout, defInterval time.Duration) (time.Duration, time.Duration, error) {
	timeout, interval := defTimeout, defInterval
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid probe timeout %q: %w", p.Timeout, err)
		}
		timeout = d
	}
	if p.Interval != "" {
		d, err := time.ParseDuration(p.Interval)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid probe interval %q: %w", p.Interval, err)
		}
		interval = d
	}
	return timeout, interval, nil
}

// Resource is a resource definition plus its runtime status.
type Resource struct {
	ResourceSpec

	// Status is guarded by the owning graph's lock.
	Status ResourceStatus `json:"status"`
}

// CommandResult is the outcome of a command run by a CommandRunner.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// RunResult summarizes a completed run.
type RunResult struct {
	ID          string                    `json:"id"`
	Action      Action                    `json:"action"`
	Status      RunStatus                 `json:"status"`
	Workers     int                       `json:"workers"`
	Statuses    map[string]ResourceStatus `json:"statuses"`
	AbortReason string                    `json:"abort_reason,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at"`
	Duration    time.Duration             `json:"duration"`
}
