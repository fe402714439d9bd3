package backends

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
	"github.com/openfroyo/provisioner/pkg/transports/ssh"
)

func testRouter(hosts map[string]*ssh.Config, transports map[string]*fakeTransport) *Router {
	r := NewRouter(NewLocalRunner(zerolog.Nop()), hosts, zerolog.Nop())
	r.newTransport = func(cfg *ssh.Config) (ssh.Transport, error) {
		return transports[cfg.Host], nil
	}
	return r
}

func TestIsLocal(t *testing.T) {
	for _, host := range []string{"", "local", "localhost"} {
		if !IsLocal(host) {
			t.Errorf("expected %q to be local", host)
		}
	}
	if IsLocal("db1") {
		t.Error("expected db1 to be remote")
	}
}

func TestRouter_LocalCommand(t *testing.T) {
	r := testRouter(nil, nil)

	result, err := r.RunCommand(context.Background(), "echo local", "localhost", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "local" {
		t.Errorf("expected stdout 'local', got %q", result.Stdout)
	}
}

func TestRouter_RemoteCommand_ConnectsOnce(t *testing.T) {
	ft := &fakeTransport{result: ssh.ExecResult{Stdout: "ok\n"}}
	r := testRouter(
		map[string]*ssh.Config{"db": ssh.DefaultConfig("10.0.0.5", "ops")},
		map[string]*fakeTransport{"10.0.0.5": ft},
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := r.RunCommand(ctx, "uptime", "db", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Stdout != "ok\n" {
			t.Errorf("expected remote stdout, got %q", result.Stdout)
		}
	}
	if ft.connects != 1 {
		t.Errorf("expected 1 connect, got %d", ft.connects)
	}
	if len(ft.commands) != 3 {
		t.Errorf("expected 3 commands, got %d", len(ft.commands))
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if ft.connected {
		t.Error("expected transport disconnected after Close")
	}
}

func TestRouter_RemoteFailureRaises(t *testing.T) {
	ft := &fakeTransport{result: ssh.ExecResult{ExitCode: 2, Stderr: "denied"}}
	r := testRouter(
		map[string]*ssh.Config{"db": ssh.DefaultConfig("10.0.0.5", "ops")},
		map[string]*fakeTransport{"10.0.0.5": ft},
	)

	_, err := r.RunCommand(context.Background(), "false", "db", true)
	if engine.CodeOf(err) != engine.ErrCodeCommandFailed {
		t.Fatalf("expected COMMAND_FAILED, got %v", err)
	}

	result, err := r.RunCommand(context.Background(), "false", "db", false)
	if err != nil {
		t.Fatalf("expected no error without raise, got: %v", err)
	}
	if result.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %d", result.ExitCode)
	}
}

func TestRouter_UnknownHost(t *testing.T) {
	r := testRouter(nil, nil)

	_, err := r.RunCommand(context.Background(), "true", "nowhere", false)
	if err == nil {
		t.Fatal("expected error for unknown host")
	}
	if !engine.IsProvisioning(err) || engine.CodeOf(err) != engine.ErrCodeBackendFailed {
		t.Errorf("expected BACKEND_FAILED provisioning error, got: %v", err)
	}
}

func TestRouter_ConnectError(t *testing.T) {
	ft := &fakeTransport{connectErr: errors.New("connection refused")}
	r := testRouter(
		map[string]*ssh.Config{"db": ssh.DefaultConfig("10.0.0.5", "ops")},
		map[string]*fakeTransport{"10.0.0.5": ft},
	)

	err := r.Upload(context.Background(), "/tmp/a", "/tmp/b", "db", 0644)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in error, got: %v", err)
	}
}

func TestRouter_RemoteUpload(t *testing.T) {
	ft := &fakeTransport{}
	r := testRouter(
		map[string]*ssh.Config{"web": ssh.DefaultConfig("web.internal", "ops")},
		map[string]*fakeTransport{"web.internal": ft},
	)

	if err := r.Upload(context.Background(), "install.sh", "/opt/install.sh", "web", 0755); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if len(ft.uploads) != 1 || ft.uploads[0] != "install.sh->/opt/install.sh" {
		t.Errorf("unexpected uploads: %v", ft.uploads)
	}
}

func TestRouter_Hosts(t *testing.T) {
	r := testRouter(map[string]*ssh.Config{
		"web": ssh.DefaultConfig("w", "u"),
		"db":  ssh.DefaultConfig("d", "u"),
	}, nil)

	hosts := r.Hosts()
	if len(hosts) != 2 || hosts[0] != "db" || hosts[1] != "web" {
		t.Errorf("expected sorted hosts [db web], got %v", hosts)
	}
}
