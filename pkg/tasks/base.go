package tasks

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// base carries what every task variant shares: probes, supply commands and
// the host its commands run on.
type base struct {
	res     *engine.Resource
	runner  engine.CommandRunner
	prober  engine.ReadinessProber
	outputs engine.OutputStore
	logger  zerolog.Logger
}

func newBase(res *engine.Resource, deps Dependencies, outputs engine.OutputStore) base {
	return base{
		res:     res,
		runner:  deps.Runner,
		prober:  deps.Prober,
		outputs: outputs,
		logger: deps.Logger.With().
			Str("resource", res.Name).
			Str("type", string(res.Type)).
			Logger(),
	}
}

// WaitForCompletion awaits the resource's probes for the action.
// Value probes only apply to install-or-upgrade.
func (b *base) WaitForCompletion(ctx context.Context, action engine.Action) error {
	if len(b.res.Probes) == 0 {
		return nil
	}
	if b.prober == nil {
		return b.fail("no readiness prober configured", "wait", nil)
	}

	for _, probe := range b.res.Probes {
		if probe.Host == "" {
			probe.Host = b.res.Host
		}

		var err error
		switch {
		case action == engine.ActionUninstall && probe.Kind == engine.ProbeValue:
			continue
		case action == engine.ActionUninstall:
			b.logger.Debug().Str("target", probe.Target).Msg("Waiting for deletion")
			err = b.prober.WaitForDeleted(ctx, probe)
		case probe.Kind == engine.ProbeValue:
			b.logger.Debug().Str("target", probe.Target).Str("path", probe.Path).Msg("Waiting for desired value")
			err = b.prober.WaitForDesiredValue(ctx, probe)
		default:
			b.logger.Debug().Str("target", probe.Target).Msg("Waiting for readiness")
			err = b.prober.WaitForReady(ctx, probe)
		}
		if err != nil {
			return b.fail("probe on "+probe.Target+" failed", "wait", err)
		}
	}
	return nil
}

// CollectInformation runs every supply command and publishes its trimmed
// stdout as an output of the resource.
func (b *base) CollectInformation(ctx context.Context) error {
	if len(b.res.Supply) == 0 {
		return nil
	}
	if b.runner == nil {
		return b.fail("no command runner configured", "collect", nil)
	}

	keys := make([]string, 0, len(b.res.Supply))
	for key := range b.res.Supply {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		result, err := b.runner.RunCommand(ctx, b.res.Supply[key], b.res.Host, true)
		if err != nil {
			return b.fail("supply command for "+key+" failed", "collect", err)
		}
		b.outputs.SetOutput(b.res.Name, key, strings.TrimSpace(result.Stdout))
		b.logger.Debug().Str("output", key).Msg("Collected output")
	}
	return nil
}

// fail classifies err as a provisioning failure of this resource. Errors that
// already carry a class keep it and gain the resource and operation.
func (b *base) fail(message, operation string, err error) *engine.EngineError {
	var engineErr *engine.EngineError
	if errors.As(err, &engineErr) {
		if engineErr.Resource == "" {
			engineErr.Resource = b.res.Name
		}
		if engineErr.Operation == "" {
			engineErr.Operation = operation
		}
		return engineErr
	}
	return engine.NewProvisioningError(message, err).
		WithResource(b.res.Name).
		WithOperation(operation)
}
