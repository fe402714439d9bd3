package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Run executes cmd on the remote host in a new session.
func (c *Client) Run(ctx context.Context, cmd string) (ExecResult, error) {
	result := ExecResult{StartedAt: time.Now()}

	client, err := c.sshClient()
	if err != nil {
		return result, err
	}

	if _, ok := ctx.Deadline(); !ok && c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	log.Debug().Str("host", c.config.Host).Str("command", cmd).Msg("executing command")

	session, err := client.NewSession()
	if err != nil {
		return result, &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		result.Duration = time.Since(result.StartedAt)
		return result, &TransportError{Op: "execute", Err: ctx.Err()}
	case runErr = <-done:
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Duration = time.Since(result.StartedAt)

	var exitErr *ssh.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		return result, &TransportError{Op: "execute", Err: runErr, IsTemporary: true}
	}

	log.Debug().
		Str("host", c.config.Host).
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("command completed")

	return result, nil
}
