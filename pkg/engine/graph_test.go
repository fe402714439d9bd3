package engine

import (
	"strings"
	"testing"
)

// manifest returns a minimal Manifest resource spec.
func release(name string, refs []ValueRef, deps ...string) ResourceSpec {
	return ResourceSpec{
		Name:      name,
		Type:      ResourceTypeRelease,
		DependsOn: deps,
		Release: &ReleaseSpec{
			Name:       name,
			Namespace:  "default",
			Chart:      "repo/" + name,
			ValuesFrom: refs,
		},
	}
}

func manifest(name string, deps ...string) ResourceSpec {
	return ResourceSpec{
		Name:      name,
		Type:      ResourceTypeManifest,
		DependsOn: deps,
		Manifest:  &ManifestSpec{Files: []string{name + ".yaml"}},
	}
}

func TestNewResourceGraph_Empty(t *testing.T) {
	g, err := NewResourceGraph(nil, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatalf("Expected no error for empty graph, got: %v", err)
	}

	g.Lock()
	defer g.Unlock()
	if !g.AllSettled() {
		t.Error("Expected empty graph to be settled")
	}
	if g.GetReady() != nil {
		t.Error("Expected no ready resource in empty graph")
	}
}

func TestNewResourceGraph_DeclarationOrder(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{
		manifest("c"),
		manifest("a"),
		manifest("b"),
	}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	order := g.Order()
	expected := []string{"c", "a", "b"}
	for i, name := range expected {
		if order[i] != name {
			t.Errorf("Expected order[%d]=%s, got %s", i, name, order[i])
		}
	}

	g.Lock()
	defer g.Unlock()
	if r := g.GetReady(); r == nil || r.Name != "c" {
		t.Errorf("Expected first ready resource to be c, got %v", r)
	}
}

func TestNewResourceGraph_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		specs []ResourceSpec
		code  string
	}{
		{
			name:  "duplicate name",
			specs: []ResourceSpec{manifest("a"), manifest("a")},
			code:  ErrCodeDuplicateResource,
		},
		{
			name:  "unknown dependency",
			specs: []ResourceSpec{manifest("a", "missing")},
			code:  ErrCodeUnknownDependency,
		},
		{
			name:  "two node cycle",
			specs: []ResourceSpec{manifest("a", "b"), manifest("b", "a")},
			code:  ErrCodeCycle,
		},
		{
			name:  "self dependency",
			specs: []ResourceSpec{manifest("a", "a")},
			code:  ErrCodeCycle,
		},
		{
			name: "three node cycle",
			specs: []ResourceSpec{
				manifest("a", "c"),
				manifest("b", "a"),
				manifest("c", "b"),
			},
			code: ErrCodeCycle,
		},
		{
			name: "missing payload",
			specs: []ResourceSpec{
				{Name: "a", Type: ResourceTypeRelease},
			},
			code: ErrCodeValidation,
		},
		{
			name: "mismatched payload",
			specs: []ResourceSpec{
				{
					Name:      "a",
					Type:      ResourceTypeNamespace,
					Namespace: &NamespaceSpec{Name: "ns"},
					Manifest:  &ManifestSpec{Files: []string{"x.yaml"}},
				},
			},
			code: ErrCodeValidation,
		},
		{
			name:  "empty name",
			specs: []ResourceSpec{manifest("")},
			code:  ErrCodeValidation,
		},
		{
			name: "values from unknown resource",
			specs: []ResourceSpec{
				release("app", []ValueRef{{Path: "a", Resource: "ghost", Key: "k"}}),
			},
			code: ErrCodeUnknownDependency,
		},
		{
			name: "values from resource that is not a dependency",
			specs: []ResourceSpec{
				manifest("lb"),
				release("app", []ValueRef{{Path: "ip", Resource: "lb", Key: "ip"}}),
			},
			code: ErrCodeValidation,
		},
		{
			name: "values from own outputs",
			specs: []ResourceSpec{
				release("app", []ValueRef{{Path: "ip", Resource: "app", Key: "ip"}}),
			},
			code: ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResourceGraph(tt.specs, ActionInstallOrUpgrade)
			if err == nil {
				t.Fatal("Expected configuration error, got nil")
			}
			if !IsConfiguration(err) {
				t.Errorf("Expected configuration error, got: %v", err)
			}
			if code := CodeOf(err); code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, code)
			}
		})
	}
}

func TestNewResourceGraph_ValuesFromTransitiveDependency(t *testing.T) {
	app := release("app", []ValueRef{{Path: "ip", Resource: "lb", Key: "ip"}}, "ingress")
	_, err := NewResourceGraph([]ResourceSpec{
		manifest("lb"),
		manifest("ingress", "lb"),
		app,
	}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatalf("Expected transitive supplier to be accepted, got: %v", err)
	}
}

func TestNewResourceGraph_CycleMessage(t *testing.T) {
	_, err := NewResourceGraph([]ResourceSpec{
		manifest("a", "b"),
		manifest("b", "a"),
	}, ActionInstallOrUpgrade)
	if err == nil {
		t.Fatal("Expected cycle error")
	}
	if !strings.Contains(err.Error(), "circular dependency detected") {
		t.Errorf("Expected cycle in message, got: %v", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") && !strings.Contains(err.Error(), "b -> a -> b") {
		t.Errorf("Expected cycle path in message, got: %v", err)
	}
}

func TestNewResourceGraph_DuplicateDependsOn(t *testing.T) {
	_, err := NewResourceGraph([]ResourceSpec{
		manifest("a"),
		manifest("b", "a", "a"),
	}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatalf("Expected repeated dependency to be accepted, got: %v", err)
	}
}

func TestResourceGraph_GetReady_RespectsDependencies(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{
		manifest("b", "a"),
		manifest("a"),
	}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	g.Lock()
	defer g.Unlock()

	r := g.GetReady()
	if r == nil || r.Name != "a" {
		t.Fatalf("Expected a to be ready first, got %v", r)
	}
	if err := g.MarkExecuting("a"); err != nil {
		t.Fatalf("MarkExecuting failed: %v", err)
	}

	if r := g.GetReady(); r != nil {
		t.Fatalf("Expected nothing ready while a executes, got %s", r.Name)
	}
	if g.AllSettled() {
		t.Error("Expected graph not settled while b is pending")
	}

	if err := g.MarkDone("a"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	if r := g.GetReady(); r == nil || r.Name != "b" {
		t.Fatalf("Expected b ready after a is done, got %v", r)
	}
}

func TestResourceGraph_Uninstall_ReversesOrder(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{
		manifest("a"),
		manifest("b", "a"),
	}, ActionUninstall)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	g.Lock()
	defer g.Unlock()

	r := g.GetReady()
	if r == nil || r.Name != "b" {
		t.Fatalf("Expected dependent b to be uninstalled first, got %v", r)
	}
	if err := g.MarkExecuting("b"); err != nil {
		t.Fatal(err)
	}
	if r := g.GetReady(); r != nil {
		t.Fatalf("Expected a blocked until b is done, got %s", r.Name)
	}
	if err := g.MarkDone("b"); err != nil {
		t.Fatal(err)
	}
	if r := g.GetReady(); r == nil || r.Name != "a" {
		t.Fatalf("Expected a ready after b, got %v", r)
	}
}

func TestResourceGraph_TakeReady(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{manifest("a"), manifest("b", "a")}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatal(err)
	}

	g.Lock()
	defer g.Unlock()

	r := g.TakeReady()
	if r == nil || r.Name != "a" || r.Status != StatusExecuting {
		t.Fatalf("Expected a to be taken as Executing, got %+v", r)
	}
	if r := g.TakeReady(); r != nil {
		t.Errorf("Expected b to wait for a, got %s", r.Name)
	}
}

func TestResourceGraph_InvalidTransitions(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{manifest("a")}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatal(err)
	}

	g.Lock()
	defer g.Unlock()

	if err := g.MarkDone("a"); err == nil {
		t.Error("Expected Pending -> Done to be rejected")
	}
	if err := g.MarkExecuting("a"); err != nil {
		t.Fatalf("Expected Pending -> Executing, got: %v", err)
	}
	if err := g.MarkExecuting("a"); err == nil {
		t.Error("Expected Executing -> Executing to be rejected")
	}
	if err := g.MarkDone("a"); err != nil {
		t.Fatalf("Expected Executing -> Done, got: %v", err)
	}
	if err := g.MarkDone("a"); err == nil {
		t.Error("Expected Done -> Done to be rejected")
	}
	if err := g.MarkExecuting("missing"); err == nil {
		t.Error("Expected unknown resource to be rejected")
	}
}

func TestResourceGraph_AllSettled(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{manifest("a"), manifest("b")}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatal(err)
	}

	g.Lock()
	defer g.Unlock()

	if g.AllSettled() {
		t.Error("Expected pending graph not to be settled")
	}
	_ = g.MarkExecuting("a")
	_ = g.MarkExecuting("b")
	if !g.AllSettled() {
		t.Error("Expected graph with only executing resources to be settled")
	}
}

func TestResourceGraph_Outputs(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{manifest("a")}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := g.Output("a", "ip"); ok {
		t.Error("Expected no output before SetOutput")
	}
	g.SetOutput("a", "ip", "10.0.0.1")
	v, ok := g.Output("a", "ip")
	if !ok || v != "10.0.0.1" {
		t.Errorf("Expected output 10.0.0.1, got %q (found=%v)", v, ok)
	}
}

func TestResourceGraph_DOT(t *testing.T) {
	g, err := NewResourceGraph([]ResourceSpec{manifest("a"), manifest("b", "a")}, ActionInstallOrUpgrade)
	if err != nil {
		t.Fatal(err)
	}

	dot, err := g.DOT()
	if err != nil {
		t.Fatalf("DOT failed: %v", err)
	}
	if !strings.Contains(dot, "digraph") {
		t.Errorf("Expected digraph output, got: %s", dot)
	}
	if !strings.Contains(dot, `"a" -> "b"`) {
		t.Errorf("Expected edge a -> b, got: %s", dot)
	}
}
