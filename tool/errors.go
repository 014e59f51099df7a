package tool

import (
	"errors"
	"fmt"
)

// DuplicateToolError is returned when a tool name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// UnknownToolError is returned when a call names a tool that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ArgumentValidationError reports arguments that are not a JSON object or
// that violate the tool's schema. The handler is not called.
type ArgumentValidationError struct {
	Tool  string
	Field string
	Err   error
}

func (e *ArgumentValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid arguments for %s: field %q: %v", e.Tool, e.Field, e.Err)
	}
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ArgumentValidationError) Unwrap() error { return e.Err }

// MissingToolsError is returned by VerifyCatalog.
type MissingToolsError struct {
	Names []string
}

func (e *MissingToolsError) Error() string {
	return fmt.Sprintf("required tools not registered: %v", e.Names)
}

// AsToolError classifies err into a *ToolError with a stable code.
func AsToolError(name string, err error) *ToolError {
	var (
		te *ToolError
		ue *UnknownToolError
		ae *ArgumentValidationError
	)
	switch {
	case errors.As(err, &te):
		return te
	case errors.As(err, &ue):
		return &ToolError{Tool: name, Message: err.Error(), Code: CodeUnknownTool}
	case errors.As(err, &ae):
		return &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation, Details: ae.Field}
	default:
		return &ToolError{Tool: name, Message: err.Error(), Code: CodeExecution}
	}
}
