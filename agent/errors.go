package agent

import "fmt"

// ToolLoopExceededError is returned when the model keeps requesting tools
// past the configured iteration cap.
type ToolLoopExceededError struct {
	Limit    int
	LastTool string
}

func (e *ToolLoopExceededError) Error() string {
	return fmt.Sprintf("tool loop exceeded %d iterations (last tool: %q)", e.Limit, e.LastTool)
}

// ModelError reports that the completion service failed, timed out or was
// cancelled. State is where the loop was when it failed.
type ModelError struct {
	State    State
	LastTool string
	Err      error
}

func (e *ModelError) Error() string {
	if e.LastTool != "" {
		return fmt.Sprintf("model call failed in state %s after tool %q: %v", e.State, e.LastTool, e.Err)
	}
	return fmt.Sprintf("model call failed in state %s: %v", e.State, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ModelError) Unwrap() error { return e.Err }
