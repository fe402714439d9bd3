package backends

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

func TestLocalRunner_RunCommand(t *testing.T) {
	r := NewLocalRunner(zerolog.Nop())
	ctx := context.Background()

	result, err := r.RunCommand(ctx, "echo hello", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("expected stdout 'hello', got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestLocalRunner_NonZeroExit(t *testing.T) {
	r := NewLocalRunner(zerolog.Nop())
	ctx := context.Background()

	result, err := r.RunCommand(ctx, "echo boom >&2; exit 4", "", false)
	if err != nil {
		t.Fatalf("expected no error without raise, got: %v", err)
	}
	if result.ExitCode != 4 {
		t.Errorf("expected exit code 4, got %d", result.ExitCode)
	}

	_, err = r.RunCommand(ctx, "echo boom >&2; exit 4", "", true)
	if err == nil {
		t.Fatal("expected error with raise")
	}
	if engine.CodeOf(err) != engine.ErrCodeCommandFailed {
		t.Errorf("expected COMMAND_FAILED, got %s", engine.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected stderr in message, got: %v", err)
	}
}

func TestLocalRunner_Cancelled(t *testing.T) {
	r := NewLocalRunner(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.RunCommand(ctx, "sleep 5", "", false)
	if err == nil {
		t.Fatal("expected error for cancelled command")
	}
	if !engine.IsProvisioning(err) {
		t.Errorf("expected provisioning error, got: %v", err)
	}
}

func TestLocalRunner_Upload(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	if err := os.WriteFile(src, []byte("#!/bin/sh\n"), 0600); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "nested", "dst.sh")

	r := NewLocalRunner(zerolog.Nop())
	if err := r.Upload(context.Background(), src, dst, "", 0755); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("expected mode 0755, got %o", info.Mode().Perm())
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "#!/bin/sh\n" {
		t.Errorf("unexpected content %q", data)
	}
}
