package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/util"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
)

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry holds the tools offered to the completion service. Names are
// unique and registrations are permanent. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Registry{tools: make(map[string]Tool), logger: opts.Logger}
}

// Register adds t. A second tool with the same name yields *DuplicateToolError.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool: cannot register a tool without a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return &DuplicateToolError{Name: t.Name()}
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// MustRegister registers tools and panics on error. Intended for startup wiring.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t, nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Definitions returns the tool catalog sent to the model, in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.NewToolDefinition(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}

// VerifyCatalog fails with *MissingToolsError when any of names is not registered.
func (r *Registry) VerifyCatalog(names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, n := range names {
		if _, ok := r.tools[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingToolsError{Names: missing}
	}
	return nil
}

// Invoke resolves name, decodes and validates rawArgs and calls the tool.
//
// Resolution and argument failures are returned as *UnknownToolError or
// *ArgumentValidationError and the handler is not called. Handler errors and
// panics are converted into an ErrorResult payload with a nil error, so the
// returned value is always what the model should see.
func (r *Registry) Invoke(toolCtx *core.ToolContext, name string, rawArgs json.RawMessage) (any, error) {
	t, err := r.Resolve(name)
	if err != nil {
		r.logger.Warn("tool.invoke.unknown", "tool", name)
		return nil, err
	}

	args, err := decodeArgs(name, rawArgs)
	if err != nil {
		return nil, err
	}
	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		var ve *util.ValidationError
		field := ""
		if errors.As(err, &ve) {
			field = ve.Field
		}
		r.logger.Warn("tool.invoke.invalid_arguments", "tool", name, "error", err.Error())
		return nil, &ArgumentValidationError{Tool: name, Field: field, Err: err}
	}
	args = util.ApplyDefaults(args, t.Parameters())

	start := time.Now()
	result, callErr := r.call(toolCtx, t, args)
	logging.LogToolCall(r.logger, name, time.Since(start), callErr)
	if callErr != nil {
		return ErrorResult(callErr), nil
	}
	return result, nil
}

func (r *Registry) call(toolCtx *core.ToolContext, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool.invoke.panic", "tool", t.Name(), "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("tool %s panicked: %v", t.Name(), rec)
		}
	}()
	return t.Call(toolCtx, args)
}

func decodeArgs(name string, raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, &ArgumentValidationError{Tool: name, Err: fmt.Errorf("arguments must be a JSON object: %w", err)}
	}
	if args == nil {
		// literal null
		return map[string]any{}, nil
	}
	return args, nil
}
