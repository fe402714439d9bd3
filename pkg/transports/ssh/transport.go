// Package ssh runs commands and copies files on remote hosts over SSH.
package ssh

import (
	"context"
	"errors"
	"os"
	"time"
)

// Transport is a connection to one remote host.
type Transport interface {
	// Connect establishes the connection. Connecting an already connected
	// transport verifies the connection and reconnects when it is dead.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// Run executes cmd in a new session. A non-zero exit status is reported
	// in the result, not as an error.
	Run(ctx context.Context, cmd string) (ExecResult, error)

	// Upload copies a local file to the remote host via SFTP, creating
	// parent directories. A zero mode keeps the server default.
	Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error
}

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// Stdout is the standard output from the command
	Stdout string

	// Stderr is the standard error output from the command
	Stderr string

	// ExitCode is the command's exit code
	ExitCode int

	// StartedAt is when the command started executing
	StartedAt time.Time

	// Duration is the total execution time
	Duration time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "execute", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsAuthError
}
