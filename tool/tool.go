// Package tool implements the tool calling subsystem: the Tool contract,
// a FunctionTool adapter for plain Go functions, and the Registry the agent
// loop uses to resolve, validate and invoke calls requested by the model.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/util"
)

// Tool is a named capability the completion service may invoke.
//
// Tool implementations should:
//   - Provide a stable snake_case name and a description written for the model
//   - Declare a JSON object schema for their arguments
//   - Be safe for concurrent use; independent sessions share one Registry
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with validated arguments. The result must be
	// JSON-serializable.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeExecution       = "EXECUTION_ERROR"
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodePolicyViolation = "POLICY_VIOLATION"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// ErrorResult is the payload recorded as the tool result when a call fails.
// The completion service sees {"error": message}.
func ErrorResult(err error) map[string]any {
	var te *ToolError
	if errors.As(err, &te) && te.Message != "" {
		return map[string]any{"error": te.Message}
	}
	return map[string]any{"error": err.Error()}
}
