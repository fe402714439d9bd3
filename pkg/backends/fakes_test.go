package backends

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/openfroyo/provisioner/pkg/engine"
	"github.com/openfroyo/provisioner/pkg/transports/ssh"
)

// scriptedRunner answers commands by substring match and records every call.
type scriptedRunner struct {
	mu      sync.Mutex
	calls   []string
	hosts   []string
	answers []answer
}

type answer struct {
	contains string
	results  []engine.CommandResult
}

// on registers results returned in order for commands containing substr;
// the last result repeats.
func (r *scriptedRunner) on(substr string, results ...engine.CommandResult) {
	r.answers = append(r.answers, answer{contains: substr, results: results})
}

func (r *scriptedRunner) RunCommand(ctx context.Context, cmd, host string, raise bool) (engine.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	r.hosts = append(r.hosts, host)

	var result engine.CommandResult
	for i := range r.answers {
		a := &r.answers[i]
		if strings.Contains(cmd, a.contains) {
			result = a.results[0]
			if len(a.results) > 1 {
				a.results = a.results[1:]
			}
			break
		}
	}
	if raise && result.ExitCode != 0 {
		return result, commandFailed(cmd, host, result)
	}
	return result, nil
}

func (r *scriptedRunner) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

func (r *scriptedRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func ok(stdout string) engine.CommandResult {
	return engine.CommandResult{Stdout: stdout}
}

func exit(code int, stderr string) engine.CommandResult {
	return engine.CommandResult{ExitCode: code, Stderr: stderr}
}

// fakeTransport is an in-memory ssh.Transport.
type fakeTransport struct {
	connected  bool
	connects   int
	connectErr error
	commands   []string
	uploads    []string
	result     ssh.ExecResult
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.connected = false
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Run(ctx context.Context, cmd string) (ssh.ExecResult, error) {
	f.commands = append(f.commands, cmd)
	return f.result, nil
}

func (f *fakeTransport) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	f.uploads = append(f.uploads, localPath+"->"+remotePath)
	return nil
}
