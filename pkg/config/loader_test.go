package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/provisioner/pkg/engine"
)

const validYAML = `
settings:
  workers: 2
  pollInterval: 500ms
  hosts:
    db:
      address: 10.0.0.5
      user: ops
      keyPath: /keys/id_ed25519
resources:
  - name: monitoring
    type: Namespace
    namespace:
      name: monitoring
      labels:
        team: sre
  - name: prometheus
    type: Release
    dependsOn: [monitoring]
    release:
      name: prometheus
      namespace: monitoring
      chart: prometheus-community/prometheus
      version: 25.8.0
      values:
        server:
          replicas: 2
    probes:
      - kind: ready
        target: deployment/prometheus-server
        namespace: monitoring
        timeout: 2m
  - name: backup-agent
    type: Command
    host: db
    command:
      install: systemctl enable --now backup-agent
      installCheck: systemctl is-active backup-agent
    supply:
      version: backup-agent --version
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !engine.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got: %v", err)
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got: %v", err)
	}
	return verrs
}

func hasPath(errs ValidationErrors, path string) bool {
	for _, e := range errs {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestLoader_LoadYAML(t *testing.T) {
	gf, err := NewLoader().Load(writeFile(t, "graph.yaml", validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := gf.ResourceNames()
	want := []string{"monitoring", "prometheus", "backup-agent"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected resources %v, got %v", want, names)
	}
	if gf.Settings.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", gf.Settings.Workers)
	}
	if gf.Settings.Hosts["db"].Address != "10.0.0.5" {
		t.Errorf("expected db host address, got %+v", gf.Settings.Hosts["db"])
	}

	rel := gf.Resources[1].Release
	if rel == nil || rel.Version != "25.8.0" {
		t.Fatalf("expected release payload with version, got %+v", rel)
	}
	server, ok := rel.Values["server"].(map[string]interface{})
	if !ok || server["replicas"] != 2 {
		t.Errorf("expected nested values, got %v", rel.Values)
	}
	if gf.Resources[2].Supply["version"] != "backup-agent --version" {
		t.Errorf("expected supply command, got %v", gf.Resources[2].Supply)
	}
	if !strings.HasSuffix(gf.Source, "graph.yaml") {
		t.Errorf("expected source path, got %q", gf.Source)
	}
}

func TestLoader_LoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string
	}{
		{
			name: "missing type",
			content: `
resources:
  - name: a
    manifest: {files: [a.yaml]}
`,
			path: "resources[0].type",
		},
		{
			name: "unknown type",
			content: `
resources:
  - name: a
    type: Terraform
`,
			path: "resources[0].type",
		},
		{
			name: "payload mismatch",
			content: `
resources:
  - name: a
    type: Release
    manifest: {files: [a.yaml]}
`,
			path: "resources[0]",
		},
		{
			name: "release without chart",
			content: `
resources:
  - name: a
    type: Release
    release: {name: a, namespace: default}
`,
			path: "resources[0].release.chart",
		},
		{
			name: "invalid probe timeout",
			content: `
resources:
  - name: a
    type: Manifest
    manifest: {files: [a.yaml]}
    probes:
      - {kind: ready, target: pod/a, timeout: soon}
`,
			path: "resources[0].probes[0].timeout",
		},
		{
			name: "value probe without path",
			content: `
resources:
  - name: a
    type: Manifest
    manifest: {files: [a.yaml]}
    probes:
      - {kind: value, target: pvc/a, value: Bound}
`,
			path: "resources[0].probes[0].path",
		},
		{
			name: "password host without env",
			content: `
settings:
  hosts:
    db: {address: db, user: ops, auth: password}
resources: []
`,
			path: "settings.hosts[db].passwordEnv",
		},
		{
			name: "negative wait log cadence",
			content: `
settings: {workers: 0, waitLogEvery: -1}
resources: []
`,
			path: "settings.waitLogEvery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Load(writeFile(t, "graph.yaml", tt.content))
			errs := validationErrors(t, err)
			if !hasPath(errs, tt.path) {
				t.Errorf("expected error at %s, got: %v", tt.path, errs)
			}
		})
	}
}

func TestLoader_LoadYAML_UnknownField(t *testing.T) {
	_, err := NewLoader().Load(writeFile(t, "graph.yaml", `
resources:
  - name: a
    type: Manifest
    manfest: {files: [a.yaml]}
`))
	errs := validationErrors(t, err)
	if !strings.Contains(errs.Error(), "manfest") {
		t.Errorf("expected unknown field in error, got: %v", errs)
	}
}

func TestLoader_LoadYAML_Empty(t *testing.T) {
	_, err := NewLoader().Load(writeFile(t, "graph.yaml", ""))
	errs := validationErrors(t, err)
	if !strings.Contains(errs[0].Message, "empty") {
		t.Errorf("expected empty file error, got: %v", errs)
	}
}

func TestLoader_LoadCUE_List(t *testing.T) {
	gf, err := NewLoader().Load(writeFile(t, "graph.cue", `
settings: workers: 3
resources: [
	{name: "ns", type: "Namespace", namespace: name: "apps"},
	{name: "web", type: "Manifest", dependsOn: ["ns"], manifest: files: ["web.yaml"]},
]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gf.Resources) != 2 || gf.Resources[1].DependsOn[0] != "ns" {
		t.Errorf("unexpected resources: %+v", gf.Resources)
	}
	if gf.Settings.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", gf.Settings.Workers)
	}
}

func TestLoader_LoadCUE_KeyedKeepsDeclarationOrder(t *testing.T) {
	gf, err := NewLoader().Load(writeFile(t, "graph.cue", `
resources: {
	zeta: {type: "Namespace", namespace: name: "zeta"}
	alpha: {type: "Command", command: install: "true"}
	"mid-tier": {type: "Manifest", dependsOn: ["zeta"], manifest: files: ["m.yaml"]}
}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Join(gf.ResourceNames(), ",")
	if got != "zeta,alpha,mid-tier" {
		t.Errorf("expected declaration order zeta,alpha,mid-tier, got %s", got)
	}
}

func TestLoader_LoadCUE_SchemaViolation(t *testing.T) {
	_, err := NewLoader().Load(writeFile(t, "graph.cue", `
resources: [
	{name: "a", type: "Release", release: {name: "a", namespace: "default"}},
]
`))
	errs := validationErrors(t, err)
	if len(errs) == 0 {
		t.Fatal("expected schema errors")
	}
}

func TestLoader_LoadCUE_SyntaxError(t *testing.T) {
	_, err := NewLoader().Load(writeFile(t, "graph.cue", `resources: [ {name: "a" `))
	errs := validationErrors(t, err)
	if errs[0].File == "" || errs[0].Line == 0 {
		t.Errorf("expected position in syntax error, got %+v", errs[0])
	}
}

func TestLoader_LoadCUE_KeyMismatch(t *testing.T) {
	_, err := NewLoader().Load(writeFile(t, "graph.cue", `
resources: a: {name: "b", type: "Command", command: install: "true"}
`))
	errs := validationErrors(t, err)
	if !hasPath(errs, "resources.a") {
		t.Errorf("expected error at resources.a, got: %v", errs)
	}
}

func TestLoader_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"settings.cue":  "package graph\n\nsettings: workers: 1\n",
		"resources.cue": "package graph\n\nresources: [{name: \"a\", type: \"Command\", command: install: \"true\"}]\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	gf, err := NewLoader().Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gf.Settings.Workers != 1 || len(gf.Resources) != 1 {
		t.Errorf("unexpected graph: %+v", gf)
	}
}

func TestLoader_UnsupportedExtension(t *testing.T) {
	_, err := NewLoader().Load(writeFile(t, "graph.toml", "resources = []"))
	if !engine.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got: %v", err)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !engine.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got: %v", err)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{File: "g.yaml", Path: "resources[0].type", Message: "is required"},
		{File: "g.cue", Line: 3, Column: 5, Message: "conflicting values"},
	}
	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("expected count in message, got %q", msg)
	}
	if !strings.Contains(msg, "g.yaml: resources[0].type: is required") {
		t.Errorf("expected path error in message, got %q", msg)
	}
	if !strings.Contains(msg, "g.cue:3:5: conflicting values") {
		t.Errorf("expected positioned error in message, got %q", msg)
	}
}
