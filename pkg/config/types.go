package config

import (
	"fmt"
	"strings"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// GraphFile is the decoded form of a graph file.
type GraphFile struct {
	// Settings tune the run; CLI flags override them.
	Settings Settings `json:"settings" yaml:"settings"`

	// Resources in declaration order.
	Resources []engine.ResourceSpec `json:"resources" yaml:"resources" validate:"dive"`

	// Source is the file or directory the graph was loaded from.
	Source string `json:"-" yaml:"-"`
}

// ResourceNames returns resource names in declaration order.
func (g *GraphFile) ResourceNames() []string {
	names := make([]string, len(g.Resources))
	for i, r := range g.Resources {
		names[i] = r.Name
	}
	return names
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the error (e.g., "resources[2].release.chart").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// String formats the error as file:line:column: path: message.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem found in a graph file.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].String()
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(errs), strings.Join(lines, "\n  "))
}
