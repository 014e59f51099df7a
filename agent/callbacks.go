package agent

import (
	"context"
	"sync"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
)

// CallbackType defines the lifecycle points of a Loop run where callbacks execute.
type CallbackType string

const (
	// CallbackBeforeModel runs before each completion request. Callbacks may
	// modify the request. An error aborts the run.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel runs after each final completion response. An error
	// aborts the run.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool runs before each tool dispatch. An error vetoes the
	// call and is recorded as its {"error": ...} result.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool runs after each tool dispatch. Callbacks may replace
	// the result; an error replaces it with an error payload.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError runs when a run aborts. Errors it returns are logged.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect at its lifecycle point.
// Fields not relevant to the current CallbackType are nil.
type CallbackContext struct {
	CallbackType CallbackType
	SessionID    string
	Iteration    int
	State        State

	Request  *model.Request
	Response *model.Response
	Call     *core.ToolCall
	Result   *any
	Err      error

	// TurnState is shared by every call of the current Post.
	TurnState *core.TurnState
	Logger    logging.Logger
}

// Callback is a lifecycle hook executed synchronously by the Loop.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(CallbackBeforeTool, func(ctx context.Context, cc *CallbackContext) error {
//	    cc.Logger.Info("audit.tool", "tool", cc.Call.Name)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks keyed by type. Callbacks of one
// type run in registration order; the first error stops the chain. Safe for
// concurrent registration and execution.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds callbacks to the manager.
func (cm *CallbackManager) RegisterCallback(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cb := range callbacks {
		cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
	}
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, cb := range callbacks {
		if err := cb.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback logs lifecycle events at debug level.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the lifecycle event.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	args := []any{"callback", string(c.callbackType), "iteration", cc.Iteration, "state", cc.State.String()}
	if cc.Call != nil {
		args = append(args, "tool", cc.Call.Name, "call_id", cc.Call.ID)
	}
	if cc.Response != nil {
		args = append(args, "stop_reason", string(cc.Response.StopReason))
	}
	if cc.Err != nil {
		args = append(args, "error", cc.Err.Error())
	}
	c.logger.Debug("agent.callback", args...)
	return nil
}
