package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for abort handling.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates a malformed graph.
	// Detected before scheduling starts; no side effects have occurred.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassProvisioning indicates a backend call failed while performing a task.
	// Examples: apply failed, release install failed, command exited non-zero.
	ErrorClassProvisioning ErrorClass = "provisioning"

	// ErrorClassReadinessTimeout indicates a readiness probe was never satisfied
	// within the prober's own timeout. The scheduler treats it like a provisioning error.
	ErrorClassReadinessTimeout ErrorClass = "readiness_timeout"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource name that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Resource != "" && e.Operation != "":
		msg = fmt.Sprintf("%s (resource=%s, operation=%s)", msg, e.Resource, e.Operation)
	case e.Resource != "":
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConfiguration,
		Message: message,
		Code:    ErrCodeValidation,
		Err:     err,
	}
}

// NewProvisioningError creates a new provisioning error.
func NewProvisioningError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassProvisioning,
		Message: message,
		Code:    ErrCodeBackendFailed,
		Err:     err,
	}
}

// NewReadinessTimeout creates a new readiness timeout error.
func NewReadinessTimeout(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassReadinessTimeout,
		Message: message,
		Code:    ErrCodeTimeout,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(name string) *EngineError {
	e.Resource = name
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool {
	return hasClass(err, ErrorClassConfiguration)
}

// IsProvisioning returns true if the error is classified as a provisioning error.
func IsProvisioning(err error) bool {
	return hasClass(err, ErrorClassProvisioning)
}

// IsReadinessTimeout returns true if the error is classified as a readiness timeout.
func IsReadinessTimeout(err error) bool {
	return hasClass(err, ErrorClassReadinessTimeout)
}

// CodeOf returns the code of the outermost EngineError in the chain, or "".
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeUnknownDependency = "UNKNOWN_DEPENDENCY"
	ErrCodeCycle             = "CYCLE_DETECTED"
	ErrCodePolicyDenied      = "POLICY_DENIED"
	ErrCodeBackendFailed     = "BACKEND_FAILED"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
	ErrCodeMissingOutput     = "MISSING_OUTPUT"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeAborted           = "ABORTED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)
