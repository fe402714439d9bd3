package backends

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
	"github.com/openfroyo/provisioner/pkg/transports/ssh"
)

// Router dispatches commands and uploads by host alias. The empty alias,
// "local" and "localhost" run on the local machine; every other alias must
// name a configured SSH host.
type Router struct {
	local *LocalRunner
	hosts map[string]*ssh.Config

	// newTransport builds the transport for a host; replaced in tests.
	newTransport func(cfg *ssh.Config) (ssh.Transport, error)

	mu         sync.Mutex
	transports map[string]ssh.Transport

	logger zerolog.Logger
}

// NewRouter creates a router over the local runner and the given SSH hosts.
func NewRouter(local *LocalRunner, hosts map[string]*ssh.Config, logger zerolog.Logger) *Router {
	if hosts == nil {
		hosts = map[string]*ssh.Config{}
	}
	return &Router{
		local: local,
		hosts: hosts,
		newTransport: func(cfg *ssh.Config) (ssh.Transport, error) {
			return ssh.NewClient(cfg)
		},
		transports: make(map[string]ssh.Transport),
		logger:     logger.With().Str("component", "router").Logger(),
	}
}

// IsLocal reports whether host refers to the local machine.
func IsLocal(host string) bool {
	return host == "" || host == "local" || host == "localhost"
}

// Hosts returns the configured SSH host aliases, sorted.
func (r *Router) Hosts() []string {
	names := make([]string, 0, len(r.hosts))
	for name := range r.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunCommand runs cmd on host.
func (r *Router) RunCommand(ctx context.Context, cmd, host string, raiseOnFailure bool) (engine.CommandResult, error) {
	if IsLocal(host) {
		return r.local.RunCommand(ctx, cmd, host, raiseOnFailure)
	}

	t, err := r.transport(ctx, host)
	if err != nil {
		return engine.CommandResult{}, err
	}

	res, err := t.Run(ctx, cmd)
	result := engine.CommandResult{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}
	if err != nil {
		return result, engine.NewProvisioningError("failed to execute remote command", err).
			WithDetail("command", cmd).
			WithDetail("host", host)
	}

	r.logger.Debug().
		Str("host", host).
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Remote command completed")

	if raiseOnFailure && result.ExitCode != 0 {
		return result, commandFailed(cmd, host, result)
	}
	return result, nil
}

// Upload copies localPath to remotePath on host.
func (r *Router) Upload(ctx context.Context, localPath, remotePath, host string, mode os.FileMode) error {
	if IsLocal(host) {
		if err := r.local.Upload(ctx, localPath, remotePath, host, mode); err != nil {
			return engine.NewProvisioningError("failed to copy file", err).
				WithDetail("source", localPath).
				WithDetail("destination", remotePath)
		}
		return nil
	}

	t, err := r.transport(ctx, host)
	if err != nil {
		return err
	}
	if err := t.Upload(ctx, localPath, remotePath, mode); err != nil {
		return engine.NewProvisioningError("failed to upload file", err).
			WithDetail("source", localPath).
			WithDetail("destination", remotePath).
			WithDetail("host", host)
	}
	return nil
}

// transport returns a connected transport for host, connecting on first use.
func (r *Router) transport(ctx context.Context, host string) (ssh.Transport, error) {
	cfg, ok := r.hosts[host]
	if !ok {
		return nil, engine.NewProvisioningError(fmt.Sprintf("unknown host %q", host), nil).
			WithDetail("host", host)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transports[host]
	if !ok {
		var err error
		t, err = r.newTransport(cfg)
		if err != nil {
			return nil, engine.NewProvisioningError("invalid ssh configuration", err).
				WithDetail("host", host)
		}
		r.transports[host] = t
	}

	if !t.IsConnected() {
		start := time.Now()
		if err := t.Connect(ctx); err != nil {
			return nil, engine.NewProvisioningError("failed to connect", err).
				WithDetail("host", host).
				WithDetail("auth_error", ssh.IsAuthError(err))
		}
		r.logger.Info().
			Str("host", host).
			Str("address", cfg.Address()).
			Dur("duration", time.Since(start)).
			Msg("Connected to host")
	}
	return t, nil
}

// Close disconnects every open transport.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for host, t := range r.transports {
		if err := t.Disconnect(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to disconnect from %s: %w", host, err)
		}
		delete(r.transports, host)
	}
	return firstErr
}
