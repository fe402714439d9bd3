package tasks

import (
	"context"
	"testing"

	"github.com/openfroyo/provisioner/pkg/engine"
)

func commandResource(spec engine.CommandSpec) *engine.Resource {
	return &engine.Resource{ResourceSpec: engine.ResourceSpec{
		Name:    "cert-manager-crds",
		Type:    engine.ResourceTypeCommand,
		Host:    "bastion",
		Command: &spec,
	}}
}

func TestCommandTask_InstallIsIdempotent(t *testing.T) {
	b := newTestBackends(t.TempDir())
	installed := false
	b.runner.on("check", func() engine.CommandResult {
		if installed {
			return engine.CommandResult{ExitCode: 0}
		}
		return engine.CommandResult{ExitCode: 1}
	})
	b.runner.on("install", func() engine.CommandResult {
		installed = true
		return engine.CommandResult{}
	})

	task := NewCommandTask(commandResource(engine.CommandSpec{
		Install:      "install",
		InstallCheck: "check",
	}), b.deps, b.outputs)

	for i := 0; i < 2; i++ {
		if err := task.InstallOrUpgrade(context.Background()); err != nil {
			t.Fatalf("Install %d failed: %v", i+1, err)
		}
	}

	if n := b.runner.ran("install"); n != 1 {
		t.Errorf("Expected install to run once, ran %d times", n)
	}
}

func TestCommandTask_RunsOnResourceHost(t *testing.T) {
	b := newTestBackends(t.TempDir())
	task := NewCommandTask(commandResource(engine.CommandSpec{Install: "install"}), b.deps, b.outputs)

	if err := task.InstallOrUpgrade(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(b.runner.calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(b.runner.calls))
	}
	call := b.runner.calls[0]
	if call.host != "bastion" {
		t.Errorf("Expected host bastion, got %q", call.host)
	}
	if !call.raise {
		t.Error("Expected install without fallback to raise on failure")
	}
}

func TestCommandTask_InstallFailure(t *testing.T) {
	b := newTestBackends(t.TempDir())
	b.runner.exit("install", 2)
	task := NewCommandTask(commandResource(engine.CommandSpec{Install: "install"}), b.deps, b.outputs)

	err := task.InstallOrUpgrade(context.Background())
	if err == nil {
		t.Fatal("Expected install failure")
	}
	if engine.CodeOf(err) != engine.ErrCodeCommandFailed {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeCommandFailed, engine.CodeOf(err))
	}
}

func TestCommandTask_Fallback(t *testing.T) {
	tests := []struct {
		name         string
		installExit  int
		fallbackExit int
		wantFallback bool
		wantErr      bool
	}{
		{name: "install succeeds", installExit: 0},
		{name: "fallback recovers", installExit: 1, wantFallback: true},
		{name: "fallback fails", installExit: 1, fallbackExit: 1, wantFallback: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackends(t.TempDir())
			b.runner.exit("install", tt.installExit)
			b.runner.exit("fallback", tt.fallbackExit)

			task := NewCommandTask(commandResource(engine.CommandSpec{
				Install:  "install",
				Fallback: "fallback",
			}), b.deps, b.outputs)

			err := task.InstallOrUpgrade(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got: %v", tt.wantErr, err)
			}
			if ran := b.runner.ran("fallback") == 1; ran != tt.wantFallback {
				t.Errorf("Expected fallback run=%v, got %v", tt.wantFallback, ran)
			}
		})
	}
}

func TestCommandTask_Uninstall(t *testing.T) {
	b := newTestBackends(t.TempDir())
	removed := false
	b.runner.on("gone", func() engine.CommandResult {
		if removed {
			return engine.CommandResult{ExitCode: 0}
		}
		return engine.CommandResult{ExitCode: 1}
	})
	b.runner.on("remove", func() engine.CommandResult {
		removed = true
		return engine.CommandResult{}
	})

	task := NewCommandTask(commandResource(engine.CommandSpec{
		Install:        "install",
		Uninstall:      "remove",
		UninstallCheck: "gone",
	}), b.deps, b.outputs)

	for i := 0; i < 2; i++ {
		if err := task.Uninstall(context.Background()); err != nil {
			t.Fatalf("Uninstall %d failed: %v", i+1, err)
		}
	}
	if n := b.runner.ran("remove"); n != 1 {
		t.Errorf("Expected remove to run once, ran %d times", n)
	}
}

func TestCommandTask_UninstallWithoutCommand(t *testing.T) {
	b := newTestBackends(t.TempDir())
	task := NewCommandTask(commandResource(engine.CommandSpec{Install: "install"}), b.deps, b.outputs)

	if err := task.Uninstall(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(b.runner.calls) != 0 {
		t.Errorf("Expected no commands, got %v", b.runner.calls)
	}
}

func TestCommandTask_UploadsBeforeInstall(t *testing.T) {
	b := newTestBackends(t.TempDir())
	task := NewCommandTask(commandResource(engine.CommandSpec{
		Install: "sh /opt/setup.sh",
		Uploads: []engine.FileUpload{
			{Source: "scripts/setup.sh", Destination: "/opt/setup.sh", Mode: "0755"},
		},
	}), b.deps, b.outputs)

	if err := task.InstallOrUpgrade(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	expected := "scripts/setup.sh->bastion:/opt/setup.sh@755"
	if len(b.uploader.uploads) != 1 || b.uploader.uploads[0] != expected {
		t.Errorf("Expected upload %s, got %v", expected, b.uploader.uploads)
	}
}

func TestCommandTask_SkipsUploadWhenCheckPasses(t *testing.T) {
	b := newTestBackends(t.TempDir())
	b.runner.exit("check", 0)
	task := NewCommandTask(commandResource(engine.CommandSpec{
		Install:      "install",
		InstallCheck: "check",
		Uploads:      []engine.FileUpload{{Source: "a", Destination: "/tmp/a"}},
	}), b.deps, b.outputs)

	if err := task.InstallOrUpgrade(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(b.uploader.uploads) != 0 {
		t.Errorf("Expected no uploads, got %v", b.uploader.uploads)
	}
}
