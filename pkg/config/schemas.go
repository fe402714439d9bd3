package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
)

// SchemaRegistry manages CUE schemas that graph files are unified with.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas compiled in ctx.
// Values validated against the registry must come from the same context.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("graph", builtinGraphSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles a CUE schema under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with the definition def (e.g. "#Graph") of a schema
// and checks that the result is concrete.
func (sr *SchemaRegistry) Unify(schemaName, def string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	defVal := schema.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return cue.Value{}, fmt.Errorf("schema %s has no definition %s", schemaName, def)
	}

	unified := defVal.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinGraphSchema = `
#Name: =~"^[A-Za-z0-9][-A-Za-z0-9_.]*$"

#Probe: {
	kind:   "ready" | "value"
	target: string & !=""
	if kind == "value" {
		path: string & !=""
	}
	...
}

#Resource: {
	// name may be omitted when resources is keyed by name
	name?:      #Name
	type:       "Manifest" | "Release" | "Command" | "Secret" | "Namespace"
	dependsOn?: [...#Name]
	host?:      string
	probes?:    [...#Probe]
	supply?: {[string]: string}

	if type == "Manifest" {
		manifest: files: [string, ...string]
	}
	if type == "Release" {
		release: {
			name:      string & !=""
			namespace: string & !=""
			chart:     string & !=""
			...
		}
	}
	if type == "Command" {
		command: install: string & !=""
	}
	if type == "Secret" {
		secret: kind: "docker-registry" | "generic"
	}
	if type == "Namespace" {
		namespace: name: string & !=""
	}
	...
}

#Graph: {
	settings?: {...}
	resources: [...#Resource] | {[#Name]: #Resource}
	...
}
`
