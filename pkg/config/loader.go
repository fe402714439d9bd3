package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// Loader reads graph files. YAML files are decoded directly; CUE files and
// directories are unified with the built-in #Graph schema first.
type Loader struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a loader.
func NewLoader() *Loader {
	ctx := cuecontext.New()
	return &Loader{
		ctx:       ctx,
		schemas:   NewSchemaRegistry(ctx),
		validator: newValidator(),
	}
}

// newValidator returns a validator that reports yaml field names and knows
// the duration tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	return v
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads a graph from a .yaml, .yml or .cue file or a CUE package directory.
// Every failure is returned as a configuration error.
func (l *Loader) Load(path string) (*GraphFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to read graph file", err).
			WithDetail("file", path)
	}

	var gf *GraphFile
	switch {
	case info.IsDir():
		gf, err = l.loadDirectory(path)
	case strings.HasSuffix(path, ".cue"):
		var content []byte
		if content, err = os.ReadFile(path); err == nil {
			gf, err = l.LoadCUE(content, path)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		var content []byte
		if content, err = os.ReadFile(path); err == nil {
			gf, err = l.LoadYAML(content, path)
		}
	default:
		err = fmt.Errorf("unsupported graph file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, asConfigurationError(err, path)
	}
	gf.Source = path
	return gf, nil
}

// LoadYAML decodes and validates a YAML graph.
func (l *Loader) LoadYAML(content []byte, filename string) (*GraphFile, error) {
	var gf GraphFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&gf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ValidationErrors{{File: filename, Message: "graph file is empty"}}
		}
		return nil, ValidationErrors{{File: filename, Message: err.Error()}}
	}

	if err := l.Validate(&gf, filename); err != nil {
		return nil, err
	}
	return &gf, nil
}

// LoadCUE compiles, schema-checks, decodes and validates a CUE graph.
func (l *Loader) LoadCUE(content []byte, filename string) (*GraphFile, error) {
	val := l.ctx.CompileBytes(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	return l.fromCUE(val, filename)
}

// loadDirectory loads a directory as a CUE package.
func (l *Loader) loadDirectory(dir string) (*GraphFile, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, ValidationErrors{{File: dir, Message: "no CUE files found"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, convertCUEErrors(inst.Err)
	}

	val := l.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	return l.fromCUE(val, dir)
}

func (l *Loader) fromCUE(val cue.Value, filename string) (*GraphFile, error) {
	unified, err := l.schemas.Unify("graph", "#Graph", val)
	if err != nil {
		return nil, convertCUEErrors(err)
	}

	var gf GraphFile
	if settings := unified.LookupPath(cue.ParsePath("settings")); settings.Exists() {
		if err := settings.Decode(&gf.Settings); err != nil {
			return nil, ValidationErrors{{File: filename, Path: "settings", Message: err.Error()}}
		}
	}

	resources := unified.LookupPath(cue.ParsePath("resources"))
	var errs ValidationErrors
	switch resources.Kind() {
	case cue.ListKind:
		list, err := resources.List()
		if err != nil {
			return nil, convertCUEErrors(err)
		}
		for idx := 0; list.Next(); idx++ {
			var spec engine.ResourceSpec
			if err := list.Value().Decode(&spec); err != nil {
				errs = append(errs, ValidationError{File: filename, Path: fmt.Sprintf("resources[%d]", idx), Message: err.Error()})
				continue
			}
			gf.Resources = append(gf.Resources, spec)
		}

	case cue.StructKind:
		// Keyed form; fields iterate in declaration order.
		iter, err := resources.Fields()
		if err != nil {
			return nil, convertCUEErrors(err)
		}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			var spec engine.ResourceSpec
			if err := iter.Value().Decode(&spec); err != nil {
				errs = append(errs, ValidationError{File: filename, Path: "resources." + key, Message: err.Error()})
				continue
			}
			if spec.Name == "" {
				spec.Name = key
			} else if spec.Name != key {
				errs = append(errs, ValidationError{
					File:    filename,
					Path:    "resources." + key,
					Message: fmt.Sprintf("name %q does not match key %q", spec.Name, key),
				})
				continue
			}
			gf.Resources = append(gf.Resources, spec)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if err := l.Validate(&gf, filename); err != nil {
		return nil, err
	}
	return &gf, nil
}

// Validate checks struct tags and the type/payload coherence of every resource.
// Graph-level checks (duplicates, unknown dependencies, cycles) are left to
// engine.NewResourceGraph.
func (l *Loader) Validate(gf *GraphFile, filename string) error {
	var errs ValidationErrors

	if err := l.validator.Struct(gf); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				File:    filename,
				Path:    strings.TrimPrefix(fe.Namespace(), "GraphFile."),
				Message: describeFieldError(fe),
			})
		}
	}

	for i := range gf.Resources {
		if err := gf.Resources[i].CheckPayload(); err != nil {
			errs = append(errs, ValidationError{
				File:    filename,
				Path:    fmt.Sprintf("resources[%d]", i),
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if", "required_with":
		return fmt.Sprintf("is required when %s is set", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "duration":
		return fmt.Sprintf("invalid duration %q", fe.Value())
	case "min", "max":
		return fmt.Sprintf("must be %s %s, got %v", map[string]string{"min": ">=", "max": "<="}[fe.Tag()], fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// convertCUEErrors converts CUE errors to ValidationErrors with positions.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: strings.TrimSpace(cueerrors.Details(e, nil)),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}

func asConfigurationError(err error, path string) error {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return engine.NewConfigurationError("invalid graph file", err).WithDetail("file", path)
}
