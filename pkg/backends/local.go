package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// LocalRunner runs commands through the local shell.
type LocalRunner struct {
	// Shell is the shell invoked with -c (default /bin/sh).
	Shell string

	// Dir is the working directory; empty means the current one.
	Dir string

	logger zerolog.Logger
}

// NewLocalRunner creates a runner using /bin/sh.
func NewLocalRunner(logger zerolog.Logger) *LocalRunner {
	return &LocalRunner{
		Shell:  "/bin/sh",
		logger: logger.With().Str("component", "local-runner").Logger(),
	}
}

// RunCommand runs cmd locally. The host argument is ignored.
func (r *LocalRunner) RunCommand(ctx context.Context, cmd, host string, raiseOnFailure bool) (engine.CommandResult, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	c := exec.CommandContext(ctx, shell, "-c", cmd)
	c.Dir = r.Dir
	c.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	result := engine.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return result, engine.NewProvisioningError("failed to execute command", err).
				WithDetail("command", cmd)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug().
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command completed")

	if raiseOnFailure && result.ExitCode != 0 {
		return result, commandFailed(cmd, "", result)
	}
	return result, nil
}

// Upload copies a file on the local filesystem. The host argument is ignored.
func (r *LocalRunner) Upload(ctx context.Context, localPath, remotePath, host string, mode os.FileMode) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(remotePath), 0750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	if mode == 0 {
		mode = 0644
	}
	dst, err := os.OpenFile(remotePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	return os.Chmod(remotePath, mode)
}
