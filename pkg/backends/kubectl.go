package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// Kubectl applies and removes manifest files with the kubectl CLI.
type Kubectl struct {
	runner engine.CommandRunner

	// Binary is the kubectl executable (default "kubectl").
	Binary string

	// Context selects a kubeconfig context; empty uses the current one.
	Context string

	// Host is the host alias kubectl runs on.
	Host string
}

// NewKubectl creates a kubectl backend running through runner.
func NewKubectl(runner engine.CommandRunner, binary, kubeContext string) *Kubectl {
	if binary == "" {
		binary = "kubectl"
	}
	return &Kubectl{runner: runner, Binary: binary, Context: kubeContext}
}

// command builds a kubectl command line.
func (k *Kubectl) command(args ...string) string {
	all := make([]string, 0, len(args)+3)
	all = append(all, k.Binary)
	if k.Context != "" {
		all = append(all, "--context", k.Context)
	}
	all = append(all, args...)
	return join(all...)
}

func fileArgs(args []string, files []string) []string {
	for _, f := range files {
		args = append(args, "-f", f)
	}
	return args
}

// Apply runs kubectl apply on the files.
func (k *Kubectl) Apply(ctx context.Context, files []string) error {
	_, err := k.runner.RunCommand(ctx, k.command(fileArgs([]string{"apply"}, files)...), k.Host, true)
	return err
}

// Remove deletes the objects described by the files. Missing objects are ignored.
func (k *Kubectl) Remove(ctx context.Context, files []string) error {
	_, err := k.runner.RunCommand(ctx, k.command(fileArgs([]string{"delete", "--ignore-not-found"}, files)...), k.Host, true)
	return err
}

// NeedsApply runs kubectl diff. Exit status 0 means in sync, 1 means drift.
func (k *Kubectl) NeedsApply(ctx context.Context, files []string) (bool, error) {
	cmd := k.command(fileArgs([]string{"diff"}, files)...)
	result, err := k.runner.RunCommand(ctx, cmd, k.Host, false)
	if err != nil {
		return false, err
	}

	switch result.ExitCode {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, engine.NewProvisioningError(
			fmt.Sprintf("kubectl diff exited with status %d", result.ExitCode), nil).
			WithCode(engine.ErrCodeCommandFailed).
			WithDetail("command", cmd).
			WithDetail("stderr", strings.TrimSpace(result.Stderr))
	}
}
