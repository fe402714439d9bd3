package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openfroyo/provisioner/pkg/engine"
	"github.com/openfroyo/provisioner/pkg/transports/ssh"
)

// Settings tune a run. Durations are Go duration strings.
type Settings struct {
	// Workers is the size of the worker pool.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"omitempty,min=1,max=256"`

	// PollInterval is how long an idle worker sleeps.
	PollInterval string `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty" validate:"omitempty,duration"`

	// WaitLogEvery emits a waiting log line every N idle iterations.
	WaitLogEvery int `json:"waitLogEvery,omitempty" yaml:"waitLogEvery,omitempty" validate:"omitempty,min=1"`

	// RenderDir receives rendered secret and namespace manifests.
	RenderDir string `json:"renderDir,omitempty" yaml:"renderDir,omitempty"`

	// StateDB is the SQLite run history path; "" disables history.
	StateDB string `json:"stateDB,omitempty" yaml:"stateDB,omitempty"`

	Kubectl KubectlSettings         `json:"kubectl,omitempty" yaml:"kubectl,omitempty"`
	Helm    HelmSettings            `json:"helm,omitempty" yaml:"helm,omitempty"`
	Probes  ProbeSettings           `json:"probes,omitempty" yaml:"probes,omitempty"`
	Hosts   map[string]HostSettings `json:"hosts,omitempty" yaml:"hosts,omitempty" validate:"dive"`
	Policy  PolicySettings          `json:"policy,omitempty" yaml:"policy,omitempty"`

	Telemetry TelemetrySettings `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// KubectlSettings configure the manifest backend and the prober.
type KubectlSettings struct {
	Binary  string `json:"binary,omitempty" yaml:"binary,omitempty"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	// Host is the host alias kubectl runs on.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
}

// HelmSettings configure the release backend.
type HelmSettings struct {
	Binary string `json:"binary,omitempty" yaml:"binary,omitempty"`

	// Host is the host alias helm runs on.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
}

// ProbeSettings are the defaults of probes that set no timeout or interval.
type ProbeSettings struct {
	Timeout  string `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"omitempty,duration"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty" validate:"omitempty,duration"`
}

// HostSettings describe an SSH host alias.
type HostSettings struct {
	Address string `json:"address" yaml:"address" validate:"required"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User    string `json:"user" yaml:"user" validate:"required"`

	// Auth is key (default), password or agent.
	Auth string `json:"auth,omitempty" yaml:"auth,omitempty" validate:"omitempty,oneof=key password agent"`

	KeyPath string `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`

	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `json:"passwordEnv,omitempty" yaml:"passwordEnv,omitempty" validate:"required_if=Auth password"`

	KnownHosts            string `json:"knownHosts,omitempty" yaml:"knownHosts,omitempty"`
	InsecureIgnoreHostKey bool   `json:"insecureIgnoreHostKey,omitempty" yaml:"insecureIgnoreHostKey,omitempty"`

	ConnectTimeout string `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty" validate:"omitempty,duration"`
	CommandTimeout string `json:"commandTimeout,omitempty" yaml:"commandTimeout,omitempty" validate:"omitempty,duration"`

	// Jump host.
	ProxyAddress string `json:"proxyAddress,omitempty" yaml:"proxyAddress,omitempty"`
	ProxyPort    int    `json:"proxyPort,omitempty" yaml:"proxyPort,omitempty" validate:"omitempty,min=1,max=65535"`
	ProxyUser    string `json:"proxyUser,omitempty" yaml:"proxyUser,omitempty" validate:"required_with=ProxyAddress"`
	ProxyKeyPath string `json:"proxyKeyPath,omitempty" yaml:"proxyKeyPath,omitempty"`
}

// PolicySettings configure the pre-run policy gate.
type PolicySettings struct {
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// Paths are extra Rego files or directories evaluated with the built-in rules.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// TelemetrySettings configure metrics and tracing.
type TelemetrySettings struct {
	// MetricsAddr serves /metrics when set (e.g. ":9090").
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty" validate:"omitempty,hostname_port"`

	// Tracing selects the span exporter.
	Tracing string `json:"tracing,omitempty" yaml:"tracing,omitempty" validate:"omitempty,oneof=none stdout otlp"`

	OTLPEndpoint string `json:"otlpEndpoint,omitempty" yaml:"otlpEndpoint,omitempty"`
}

const (
	defaultProbeTimeout  = 5 * time.Minute
	defaultProbeInterval = 2 * time.Second
)

// DefaultSettings returns the settings used when a graph file has none.
func DefaultSettings() Settings {
	sched := engine.DefaultSchedulerConfig()
	return Settings{
		Workers:      sched.Workers,
		PollInterval: sched.PollInterval.String(),
		WaitLogEvery: sched.WaitLogEvery,
		RenderDir:    filepath.Join(os.TempDir(), "provisioner"),
		Kubectl:      KubectlSettings{Binary: "kubectl"},
		Helm:         HelmSettings{Binary: "helm"},
		Probes: ProbeSettings{
			Timeout:  defaultProbeTimeout.String(),
			Interval: defaultProbeInterval.String(),
		},
		Telemetry: TelemetrySettings{Tracing: "none"},
	}
}

// WithDefaults fills every zero field from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Workers == 0 {
		s.Workers = d.Workers
	}
	if s.PollInterval == "" {
		s.PollInterval = d.PollInterval
	}
	if s.WaitLogEvery == 0 {
		s.WaitLogEvery = d.WaitLogEvery
	}
	if s.RenderDir == "" {
		s.RenderDir = d.RenderDir
	}
	if s.Kubectl.Binary == "" {
		s.Kubectl.Binary = d.Kubectl.Binary
	}
	if s.Helm.Binary == "" {
		s.Helm.Binary = d.Helm.Binary
	}
	if s.Probes.Timeout == "" {
		s.Probes.Timeout = d.Probes.Timeout
	}
	if s.Probes.Interval == "" {
		s.Probes.Interval = d.Probes.Interval
	}
	if s.Telemetry.Tracing == "" {
		s.Telemetry.Tracing = d.Telemetry.Tracing
	}
	return s
}

// SchedulerConfig converts the worker settings.
func (s Settings) SchedulerConfig() (engine.SchedulerConfig, error) {
	cfg := engine.DefaultSchedulerConfig()
	if s.Workers > 0 {
		cfg.Workers = s.Workers
	}
	if s.WaitLogEvery > 0 {
		cfg.WaitLogEvery = s.WaitLogEvery
	}
	interval, err := parseDuration(s.PollInterval, cfg.PollInterval)
	if err != nil {
		return cfg, fmt.Errorf("invalid poll interval: %w", err)
	}
	cfg.PollInterval = interval
	return cfg, nil
}

// ProbeDefaults returns the default probe timeout and interval.
func (s Settings) ProbeDefaults() (time.Duration, time.Duration, error) {
	timeout, err := parseDuration(s.Probes.Timeout, defaultProbeTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid probe timeout: %w", err)
	}
	interval, err := parseDuration(s.Probes.Interval, defaultProbeInterval)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid probe interval: %w", err)
	}
	return timeout, interval, nil
}

// HostNames returns the configured host aliases, sorted.
func (s Settings) HostNames() []string {
	names := make([]string, 0, len(s.Hosts))
	for name := range s.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SSHConfigs builds a transport configuration per host alias.
func (s Settings) SSHConfigs() (map[string]*ssh.Config, error) {
	configs := make(map[string]*ssh.Config, len(s.Hosts))
	for _, name := range s.HostNames() {
		cfg, err := s.Hosts[name].sshConfig()
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", name, err)
		}
		configs[name] = cfg
	}
	return configs, nil
}

func (h HostSettings) sshConfig() (*ssh.Config, error) {
	cfg := ssh.DefaultConfig(h.Address, h.User)
	if h.Port != 0 {
		cfg.Port = h.Port
	}

	switch h.Auth {
	case "", "key":
		cfg.AuthMethod = ssh.AuthMethodKey
		cfg.PrivateKeyPath = expandHome(h.KeyPath)
	case "password":
		cfg.AuthMethod = ssh.AuthMethodPassword
		cfg.Password = os.Getenv(h.PasswordEnv)
		if cfg.Password == "" {
			return nil, fmt.Errorf("environment variable %s is empty", h.PasswordEnv)
		}
	case "agent":
		cfg.AuthMethod = ssh.AuthMethodAgent
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", h.Auth)
	}

	if h.KnownHosts != "" {
		cfg.KnownHostsPath = expandHome(h.KnownHosts)
	}
	cfg.StrictHostKeyChecking = !h.InsecureIgnoreHostKey

	var err error
	if cfg.ConnectionTimeout, err = parseDuration(h.ConnectTimeout, cfg.ConnectionTimeout); err != nil {
		return nil, fmt.Errorf("invalid connect timeout: %w", err)
	}
	if cfg.CommandTimeout, err = parseDuration(h.CommandTimeout, cfg.CommandTimeout); err != nil {
		return nil, fmt.Errorf("invalid command timeout: %w", err)
	}

	if h.ProxyAddress != "" {
		cfg.ProxyHost = h.ProxyAddress
		if h.ProxyPort != 0 {
			cfg.ProxyPort = h.ProxyPort
		}
		cfg.ProxyUser = h.ProxyUser
		cfg.ProxyAuthMethod = ssh.AuthMethodKey
		cfg.ProxyPrivateKeyPath = expandHome(h.ProxyKeyPath)
		if cfg.ProxyPrivateKeyPath == "" {
			cfg.ProxyPrivateKeyPath = cfg.PrivateKeyPath
		}
	}
	return cfg, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
