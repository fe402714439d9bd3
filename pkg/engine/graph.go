package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// ResourceGraph holds the resources of a run and their runtime status.
// A single mutex guards every status and output; callers of GetReady,
// MarkExecuting, MarkDone and AllSettled must hold it via Lock.
type ResourceGraph struct {
	mu sync.Mutex

	// order is the declaration order; GetReady scans it first-ready-first-served.
	order []string

	resources map[string]*Resource

	// dependents maps a resource to the resources that depend on it.
	dependents map[string][]string

	// outputs maps resource name to supply output name to value.
	outputs map[string]map[string]string

	// dag is the validated dependency graph (edge dependency -> dependent).
	dag graph.Graph[string, string]

	action Action
}

// NewResourceGraph validates the specs and builds a graph whose readiness
// relation follows the given action. Duplicate names, unknown dependencies,
// invalid payloads and cycles are reported as configuration errors.
func NewResourceGraph(specs []ResourceSpec, action Action) (*ResourceGraph, error) {
	if err := action.Validate(); err != nil {
		return nil, NewConfigurationError("invalid action", err)
	}

	g := &ResourceGraph{
		order:      make([]string, 0, len(specs)),
		resources:  make(map[string]*Resource, len(specs)),
		dependents: make(map[string][]string, len(specs)),
		outputs:    make(map[string]map[string]string),
		dag:        graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
		action:     action,
	}

	// First pass: index all resources
	for i := range specs {
		spec := specs[i]
		if spec.Name == "" {
			return nil, NewConfigurationError("resource has empty name", nil)
		}
		if _, exists := g.resources[spec.Name]; exists {
			return nil, NewConfigurationError(fmt.Sprintf("duplicate resource name: %s", spec.Name), nil).
				WithCode(ErrCodeDuplicateResource).WithResource(spec.Name)
		}
		if err := spec.CheckPayload(); err != nil {
			return nil, NewConfigurationError("invalid resource payload", err).WithResource(spec.Name)
		}
		if err := g.dag.AddVertex(spec.Name); err != nil {
			return nil, NewConfigurationError("failed to add resource", err).
				WithCode(ErrCodeInternal).WithResource(spec.Name)
		}
		g.order = append(g.order, spec.Name)
		g.resources[spec.Name] = &Resource{ResourceSpec: spec, Status: StatusPending}
	}

	// Second pass: validate dependencies and reject cycles
	for _, name := range g.order {
		for _, dep := range g.resources[name].DependsOn {
			if _, exists := g.resources[dep]; !exists {
				return nil, NewConfigurationError(
					fmt.Sprintf("resource %s depends on non-existent resource %s", name, dep), nil,
				).WithCode(ErrCodeUnknownDependency).WithResource(name)
			}

			err := g.dag.AddEdge(dep, name)
			switch {
			case err == nil:
				g.dependents[dep] = append(g.dependents[dep], name)
			case errors.Is(err, graph.ErrEdgeAlreadyExists):
				// listed twice in dependsOn
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, NewConfigurationError(
					fmt.Sprintf("circular dependency detected: %s", g.cyclePath(dep, name)), err,
				).WithCode(ErrCodeCycle).WithResource(name)
			default:
				return nil, NewConfigurationError("failed to add dependency", err).
					WithCode(ErrCodeInternal).WithResource(name)
			}
		}
	}

	if err := g.checkValueRefs(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkValueRefs requires every valuesFrom supplier to be a transitive
// dependency, so its outputs exist before the release starts.
func (g *ResourceGraph) checkValueRefs() error {
	for _, name := range g.order {
		rel := g.resources[name].Release
		if rel == nil {
			continue
		}
		for _, ref := range rel.ValuesFrom {
			if _, exists := g.resources[ref.Resource]; !exists {
				return NewConfigurationError(
					fmt.Sprintf("resource %s reads values from non-existent resource %s", name, ref.Resource), nil,
				).WithCode(ErrCodeUnknownDependency).WithResource(name)
			}
			if ref.Resource == name {
				return NewConfigurationError(
					fmt.Sprintf("resource %s reads values from its own outputs", name), nil,
				).WithCode(ErrCodeValidation).WithResource(name)
			}
			if _, err := graph.ShortestPath(g.dag, ref.Resource, name); err != nil {
				return NewConfigurationError(
					fmt.Sprintf("resource %s reads values from %s but does not depend on it", name, ref.Resource), nil,
				).WithCode(ErrCodeValidation).WithResource(name)
			}
		}
	}
	return nil
}

// cyclePath formats the cycle that adding dep -> name would close.
func (g *ResourceGraph) cyclePath(dep, name string) string {
	if dep == name {
		return name + " -> " + name
	}
	path, err := graph.ShortestPath(g.dag, name, dep)
	if err != nil || len(path) == 0 {
		return name + " -> " + dep + " -> " + name
	}
	return strings.Join(append(path, name), " -> ")
}

// Lock acquires the graph's exclusive lock.
func (g *ResourceGraph) Lock() { g.mu.Lock() }

// Unlock releases the graph's exclusive lock.
func (g *ResourceGraph) Unlock() { g.mu.Unlock() }

// Action returns the action the readiness relation was built for.
func (g *ResourceGraph) Action() Action { return g.action }

// Len returns the number of resources.
func (g *ResourceGraph) Len() int { return len(g.order) }

// Order returns resource names in declaration order.
func (g *ResourceGraph) Order() []string {
	return append([]string(nil), g.order...)
}

// Resource returns the named resource. The definition is immutable; read
// Status only while holding the lock.
func (g *ResourceGraph) Resource(name string) (*Resource, bool) {
	r, ok := g.resources[name]
	return r, ok
}

// blockers returns the resources that must be Done before name may start.
func (g *ResourceGraph) blockers(name string) []string {
	if g.action == ActionUninstall {
		return g.dependents[name]
	}
	return g.resources[name].DependsOn
}

// GetReady returns the first Pending resource, in declaration order, whose
// blockers are all Done, or nil. Caller must hold the lock.
func (g *ResourceGraph) GetReady() *Resource {
	for _, name := range g.order {
		r := g.resources[name]
		if r.Status != StatusPending {
			continue
		}
		ready := true
		for _, b := range g.blockers(name) {
			if g.resources[b].Status != StatusDone {
				ready = false
				break
			}
		}
		if ready {
			return r
		}
	}
	return nil
}

// TakeReady marks the resource GetReady would return as Executing and
// returns it, or returns nil. Caller must hold the lock.
func (g *ResourceGraph) TakeReady() *Resource {
	r := g.GetReady()
	if r != nil {
		r.Status = StatusExecuting
	}
	return r
}

// MarkExecuting moves a Pending resource to Executing. Caller must hold the lock.
func (g *ResourceGraph) MarkExecuting(name string) error {
	return g.transition(name, StatusExecuting)
}

// MarkDone moves an Executing resource to Done. Caller must hold the lock.
func (g *ResourceGraph) MarkDone(name string) error {
	return g.transition(name, StatusDone)
}

func (g *ResourceGraph) transition(name string, to ResourceStatus) error {
	r, ok := g.resources[name]
	if !ok {
		return fmt.Errorf("resource %s not found", name)
	}
	if next, ok := r.Status.next(); !ok || next != to {
		return fmt.Errorf("invalid transition for %s: %s -> %s", name, r.Status, to)
	}
	r.Status = to
	return nil
}

// AllSettled reports whether every resource is Executing or Done, i.e.
// nothing is left to schedule. Caller must hold the lock.
func (g *ResourceGraph) AllSettled() bool {
	for _, name := range g.order {
		if !g.resources[name].Status.IsSettled() {
			return false
		}
	}
	return true
}

// SetOutput stores a supply output of a resource.
func (g *ResourceGraph) SetOutput(resource, key, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outputs[resource] == nil {
		g.outputs[resource] = make(map[string]string)
	}
	g.outputs[resource][key] = value
}

// Output returns a supply output of a resource.
func (g *ResourceGraph) Output(resource, key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.outputs[resource][key]
	return v, ok
}

// Snapshot returns the current status of every resource.
func (g *ResourceGraph) Snapshot() map[string]ResourceStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]ResourceStatus, len(g.order))
	for _, name := range g.order {
		out[name] = g.resources[name].Status
	}
	return out
}

// DOT renders the dependency graph in Graphviz format.
func (g *ResourceGraph) DOT() (string, error) {
	var buf bytes.Buffer
	if err := draw.DOT(g.dag, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}
