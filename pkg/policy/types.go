package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but never block a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run.
	SeverityError Severity = "error"
)

// Blocks reports whether a violation of this severity stops a run.
func (s Severity) Blocks() bool {
	return s == SeverityError
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego module. Its deny set is queried.
	Rego string `json:"rego"`

	// Severity is the default severity of violations that do not set one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the name of the offending resource.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	if v.Resource == "" {
		return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Policy, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s: %s", v.Severity, v.Policy, v.Resource, v.Message)
}

// Input is the document policies are evaluated against.
type Input struct {
	Action    engine.Action         `json:"action"`
	Resources []engine.ResourceSpec `json:"resources"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any violation blocks the run.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists findings that don't block the run.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	EvaluatedAt time.Time     `json:"evaluated_at"`
	Duration    time.Duration `json:"duration"`
}

// Err returns a configuration error listing the blocking violations, or
// nil when the run is allowed.
func (r *Result) Err() error {
	if r.Allowed {
		return nil
	}
	lines := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		lines[i] = "  " + v.String()
	}
	return engine.NewConfigurationError(
		fmt.Sprintf("%d policy violation(s):\n%s", len(r.Violations), strings.Join(lines, "\n")), nil,
	).WithCode(engine.ErrCodePolicyDenied).WithDetail("violations", r.Violations)
}
