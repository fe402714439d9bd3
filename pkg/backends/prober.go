package backends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// Prober waits for cluster objects by polling kubectl.
type Prober struct {
	kubectl *Kubectl

	// Timeout and Interval apply to probes that do not set their own.
	Timeout  time.Duration
	Interval time.Duration

	logger zerolog.Logger
}

// NewProber creates a prober that polls through kubectl.
func NewProber(kubectl *Kubectl, timeout, interval time.Duration, logger zerolog.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Prober{
		kubectl:  kubectl,
		Timeout:  timeout,
		Interval: interval,
		logger:   logger.With().Str("component", "prober").Logger(),
	}
}

// defaultCondition picks the status condition for a kind/name target.
func defaultCondition(target string) string {
	switch {
	case strings.HasPrefix(target, "deployment/"), strings.HasPrefix(target, "deployments/"):
		return "Available"
	case strings.HasPrefix(target, "job/"), strings.HasPrefix(target, "jobs/"):
		return "Complete"
	default:
		return "Ready"
	}
}

func (p *Prober) getArgs(probe engine.Probe, extra ...string) []string {
	args := []string{"get", probe.Target}
	if probe.Namespace != "" {
		args = append(args, "--namespace", probe.Namespace)
	}
	return append(args, extra...)
}

// WaitForReady waits until the target's condition reports True.
func (p *Prober) WaitForReady(ctx context.Context, probe engine.Probe) error {
	condition := probe.Condition
	if condition == "" {
		condition = defaultCondition(probe.Target)
	}
	cmd := p.kubectl.command(p.getArgs(probe,
		"--output", fmt.Sprintf(`jsonpath={.status.conditions[?(@.type=="%s")].status}`, condition))...)

	return p.poll(ctx, probe, "ready", cmd, func(out string) bool {
		return out == "True"
	})
}

// WaitForDeleted waits until the target no longer exists.
func (p *Prober) WaitForDeleted(ctx context.Context, probe engine.Probe) error {
	cmd := p.kubectl.command(p.getArgs(probe, "--ignore-not-found", "--output", "name")...)

	return p.poll(ctx, probe, "deleted", cmd, func(out string) bool {
		return out == ""
	})
}

// WaitForDesiredValue waits until the jsonpath Path of the target equals Value.
func (p *Prober) WaitForDesiredValue(ctx context.Context, probe engine.Probe) error {
	path := probe.Path
	if !strings.HasPrefix(path, "{") {
		path = "{" + path + "}"
	}
	cmd := p.kubectl.command(p.getArgs(probe, "--output", "jsonpath="+path)...)

	return p.poll(ctx, probe, "value", cmd, func(out string) bool {
		return out == probe.Value
	})
}

// poll runs cmd until done accepts its trimmed stdout. Failing commands
// keep the poll going; only the timeout ends it.
func (p *Prober) poll(ctx context.Context, probe engine.Probe, kind, cmd string, done func(string) bool) error {
	timeout, interval, err := probe.Durations(p.Timeout, p.Interval)
	if err != nil {
		return engine.NewProvisioningError("invalid probe", err).
			WithCode(engine.ErrCodeValidation).
			WithDetail("target", probe.Target)
	}

	host := probe.Host
	if host == "" {
		host = p.kubectl.Host
	}

	var last string
	attempts := 0
	err = wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		attempts++
		result, err := p.kubectl.runner.RunCommand(ctx, cmd, host, false)
		if err != nil {
			last = err.Error()
			return false, nil
		}
		if result.ExitCode != 0 {
			last = strings.TrimSpace(result.Stderr)
			return false, nil
		}
		last = strings.TrimSpace(result.Stdout)
		return done(last), nil
	})
	if err == nil {
		p.logger.Debug().
			Str("target", probe.Target).
			Str("kind", kind).
			Int("attempts", attempts).
			Msg("Probe satisfied")
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return engine.NewReadinessTimeout(
		fmt.Sprintf("%s probe on %s not satisfied within %s", kind, probe.Target, timeout), err).
		WithDetail("target", probe.Target).
		WithDetail("attempts", attempts).
		WithDetail("last_output", last)
}
