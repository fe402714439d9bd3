package tasks

import (
	"context"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// CommandTask runs shell commands guarded by check commands.
type CommandTask struct {
	base
	uploader engine.FileUploader
	spec     engine.CommandSpec
}

// NewCommandTask creates a task for a Command resource.
func NewCommandTask(res *engine.Resource, deps Dependencies, outputs engine.OutputStore) *CommandTask {
	t := &CommandTask{
		base:     newBase(res, deps, outputs),
		uploader: deps.Uploader,
	}
	if res.Command != nil {
		t.spec = *res.Command
	}
	return t
}

// InstallOrUpgrade runs the install command unless the install check passes.
func (t *CommandTask) InstallOrUpgrade(ctx context.Context) error {
	return t.step(ctx, "install", t.spec.InstallCheck, t.spec.Install, t.spec.Fallback, t.upload)
}

// Uninstall runs the uninstall command unless the uninstall check passes.
func (t *CommandTask) Uninstall(ctx context.Context) error {
	if t.spec.Uninstall == "" {
		t.logger.Debug().Msg("No uninstall command, nothing to do")
		return nil
	}
	return t.step(ctx, "uninstall", t.spec.UninstallCheck, t.spec.Uninstall, t.spec.UninstallFallback, nil)
}

// upload copies the declared files to the resource's host.
func (t *CommandTask) upload(ctx context.Context) error {
	if len(t.spec.Uploads) == 0 {
		return nil
	}
	if t.uploader == nil {
		return t.fail("no file uploader configured", "upload", nil)
	}
	for _, u := range t.spec.Uploads {
		mode, err := u.FileMode()
		if err != nil {
			return t.fail("invalid upload", "upload", err)
		}
		if err := t.uploader.Upload(ctx, u.Source, u.Destination, t.res.Host, mode); err != nil {
			return t.fail("failed to upload "+u.Source, "upload", err)
		}
		t.logger.Debug().Str("source", u.Source).Str("destination", u.Destination).Msg("Uploaded file")
	}
	return nil
}

// step runs check, then before, then command, then fallback when command
// exits non-zero. A check exiting 0 means the step is already satisfied.
func (t *CommandTask) step(ctx context.Context, operation, check, command, fallback string, before func(context.Context) error) error {
	if t.runner == nil {
		return t.fail("no command runner configured", operation, nil)
	}

	if check != "" {
		result, err := t.runner.RunCommand(ctx, check, t.res.Host, false)
		if err != nil {
			return t.fail(operation+" check could not run", operation, err)
		}
		if result.ExitCode == 0 {
			t.logger.Info().Str("operation", operation).Msg("Check passed, skipping command")
			return nil
		}
	}

	if before != nil {
		if err := before(ctx); err != nil {
			return err
		}
	}

	if fallback == "" {
		if _, err := t.runner.RunCommand(ctx, command, t.res.Host, true); err != nil {
			return t.fail(operation+" command failed", operation, err)
		}
		t.logger.Info().Str("operation", operation).Msg("Command succeeded")
		return nil
	}

	result, err := t.runner.RunCommand(ctx, command, t.res.Host, false)
	if err != nil {
		return t.fail(operation+" command could not run", operation, err)
	}
	if result.ExitCode == 0 {
		t.logger.Info().Str("operation", operation).Msg("Command succeeded")
		return nil
	}

	t.logger.Warn().
		Str("operation", operation).
		Int("exit_code", result.ExitCode).
		Str("stderr", result.Stderr).
		Msg("Command failed, running fallback")
	if _, err := t.runner.RunCommand(ctx, fallback, t.res.Host, true); err != nil {
		return t.fail(operation+" fallback failed", operation, err)
	}
	t.logger.Info().Str("operation", operation).Msg("Fallback succeeded")
	return nil
}
