package core

import (
	"context"
	"sync"

	"github.com/hupe1980/ragmesh/logging"
)

// TurnState is scratch state scoped to one Session.Post call. Tools and
// loop callbacks use it to observe what already happened in the current
// turn (for example which subjects were searched). It is safe for
// concurrent use.
type TurnState struct {
	mu     sync.RWMutex
	values map[string]any
	calls  []ToolCall
}

// NewTurnState creates empty turn-scoped state.
func NewTurnState() *TurnState {
	return &TurnState{values: map[string]any{}}
}

// Get returns the value stored under key.
func (s *TurnState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value under key.
func (s *TurnState) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// RecordCall appends a dispatched tool call to the turn log.
func (s *TurnState) RecordCall(call ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

// Calls returns a copy of the tool calls dispatched so far in this turn.
func (s *TurnState) Calls() []ToolCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ToolCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// ToolContext provides a constrained surface for tool implementations:
// the caller's context (deadline / cancellation), the id of the call being
// served, a logger and the turn-scoped state.
type ToolContext struct {
	ctx    context.Context
	call   ToolCall
	state  *TurnState
	logger logging.Logger
}

// NewToolContext constructs a tool context for a single call. A nil state
// or logger is replaced by an empty state / NoOpLogger.
func NewToolContext(ctx context.Context, call ToolCall, state *TurnState, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if state == nil {
		state = NewTurnState()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{ctx: ctx, call: call, state: state, logger: logger}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// FunctionCallID returns the id of the call being served.
func (tc *ToolContext) FunctionCallID() string { return tc.call.ID }

// ToolName returns the name of the tool being invoked.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// TurnState returns the state shared by all calls of the current turn.
func (tc *ToolContext) TurnState() *TurnState { return tc.state }

// GetState retrieves turn-scoped state.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.state.Get(k) }

// SetState records turn-scoped state.
func (tc *ToolContext) SetState(k string, v any) { tc.state.Set(k, v) }
