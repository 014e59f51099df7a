package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/model"
	"github.com/hupe1980/ragmesh/tool"
)

// State is a phase of the Loop state machine.
type State int

const (
	// StateAwaitingModel means a completion request is outstanding.
	StateAwaitingModel State = iota
	// StateDispatchingTool means requested tool calls are being executed.
	StateDispatchingTool
	// StateDone means the model produced its final answer.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateDispatchingTool:
		return "dispatching_tool"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DispatchMode selects what happens when the model requests several tool
// calls in one response.
type DispatchMode int

const (
	// DispatchFirst executes only the first requested call. The remaining
	// calls are dropped and not recorded in the history.
	DispatchFirst DispatchMode = iota
	// DispatchAll executes every requested call sequentially in request
	// order, appending one tool turn each.
	DispatchAll
)

// Options configures a Loop.
//
// Use functional options with NewLoop to override defaults.
type Options struct {
	// Instruction is sent as the system turn when the history has none.
	Instruction Instruction

	// MaxIterations caps model ⇄ tool cycles per Run. Values below 1 fall
	// back to DefaultMaxIterations; the loop is always bounded.
	MaxIterations int

	DispatchMode DispatchMode

	// Temperature is forwarded with every completion request. nil leaves
	// the provider default.
	Temperature *float64

	// CallTimeout bounds each completion request. 0 disables it.
	CallTimeout time.Duration

	// Stream requests incremental text; deltas go to the run's OnPartial sink.
	Stream bool

	Callbacks *CallbackManager
	Logger    logging.Logger
}

// RunOptions configures a single Run.
type RunOptions struct {
	// TurnState is shared with tools and callbacks. A fresh one is created
	// when nil.
	TurnState *core.TurnState
	// OnPartial receives streamed text deltas when streaming is enabled.
	OnPartial func(string)
	// SessionID is exposed to callbacks and instruction templates.
	SessionID string
}

// Result summarizes a completed Run.
type Result struct {
	// Final is the assistant turn that ended the run. Its content may be nil.
	Final      core.Turn
	Iterations int
	ToolCalls  int
	Usage      model.TokenUsage
}

// Loop drives one conversation turn: it alternates between the completion
// service and the tool registry until the model answers in natural
// language or the iteration cap is hit.
//
// A Loop holds no per-run state and may be shared by many sessions.
type Loop struct {
	model     model.Model
	registry  *tool.Registry
	opts      Options
	logger    logging.Logger
	callbacks *CallbackManager
}

// DefaultMaxIterations is the cycle cap used when none is configured.
const DefaultMaxIterations = 8

// NewLoop creates a Loop with defaults: at most 8 cycles, DispatchFirst,
// temperature 0.1 and a 60 second per-call timeout.
func NewLoop(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Loop {
	temperature := 0.1
	opts := Options{
		MaxIterations: DefaultMaxIterations,
		DispatchMode:  DispatchFirst,
		Temperature:   &temperature,
		CallTimeout:   60 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if registry == nil {
		registry = tool.NewRegistry()
	}

	return &Loop{
		model:     m,
		registry:  registry,
		opts:      opts,
		logger:    opts.Logger,
		callbacks: opts.Callbacks,
	}
}

// Callbacks returns the manager used for lifecycle hooks.
func (l *Loop) Callbacks() *CallbackManager { return l.callbacks }

// Registry returns the tool registry the loop dispatches against.
func (l *Loop) Registry() *tool.Registry { return l.registry }

// Run drives the state machine against h, appending every assistant and
// tool turn it produces. Callers wanting atomic commits pass a clone.
//
// Tool failures never abort a run; they are recorded as {"error": ...}
// results for the model to react to. Model failures abort with *ModelError
// and an exceeded cap aborts with *ToolLoopExceededError.
func (l *Loop) Run(ctx context.Context, h *core.History, optFns ...func(o *RunOptions)) (Result, error) {
	ro := RunOptions{}
	for _, fn := range optFns {
		fn(&ro)
	}
	if ro.TurnState == nil {
		ro.TurnState = core.NewTurnState()
	}

	var (
		result   Result
		state    = StateAwaitingModel
		pending  []core.ToolCall
		lastTool string
		limiter  = core.NewIterationLimiter(l.opts.MaxIterations)
	)

	for {
		switch state {
		case StateAwaitingModel:
			resp, err := l.callModel(ctx, h, &ro, limiter.Count())
			if err != nil {
				return result, l.fail(ctx, &ro, state, limiter.Count(), &ModelError{State: state, LastTool: lastTool, Err: err})
			}
			addUsage(&result.Usage, resp.Usage)

			if !resp.RequestsTools() {
				final := core.NewAssistantTurn("")
				final.Content = resp.Content
				if err := h.Append(final); err != nil {
					return result, err
				}
				result.Final = final
				state = StateDone
				continue
			}

			if err := limiter.Increment(); err != nil {
				return result, l.fail(ctx, &ro, state, limiter.Count(), &ToolLoopExceededError{
					Limit:    limiter.Max(),
					LastTool: lastTool,
				})
			}

			pending = l.selectCalls(resp.ToolCalls)
			if err := h.Append(core.NewToolRequestTurn(resp.Content, pending...)); err != nil {
				return result, err
			}
			state = StateDispatchingTool

		case StateDispatchingTool:
			for _, call := range pending {
				payload := l.dispatch(ctx, call, &ro, limiter.Count())
				if err := h.Append(core.NewToolResultTurn(call, payload)); err != nil {
					return result, err
				}
				lastTool = call.Name
				result.ToolCalls++
			}
			pending = nil
			state = StateAwaitingModel

		case StateDone:
			result.Iterations = limiter.Count()
			l.logger.Debug("agent.loop.done",
				"session_id", ro.SessionID,
				"iterations", result.Iterations,
				"tool_calls", result.ToolCalls,
			)
			return result, nil
		}
	}
}

// selectCalls applies the dispatch mode and assigns ids to calls the
// provider left unnamed so tool turns can reference them.
func (l *Loop) selectCalls(calls []core.ToolCall) []core.ToolCall {
	if l.opts.DispatchMode == DispatchFirst && len(calls) > 1 {
		l.logger.Debug("agent.loop.calls_dropped", "requested", len(calls), "dispatched", 1)
		calls = calls[:1]
	}
	out := make([]core.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + core.NewID()
		}
		out[i] = c
	}
	return out
}

func (l *Loop) callModel(ctx context.Context, h *core.History, ro *RunOptions, iteration int) (model.Response, error) {
	turns, err := l.requestTurns(ctx, h, ro)
	if err != nil {
		return model.Response{}, err
	}

	req := model.Request{
		Turns:       turns,
		Tools:       l.registry.Definitions(),
		Temperature: l.opts.Temperature,
		Stream:      l.opts.Stream,
	}

	cc := &CallbackContext{
		SessionID: ro.SessionID,
		Iteration: iteration,
		State:     StateAwaitingModel,
		Request:   &req,
		TurnState: ro.TurnState,
		Logger:    l.logger,
	}
	if err := l.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, cc); err != nil {
		return model.Response{}, err
	}

	callCtx := ctx
	if l.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.opts.CallTimeout)
		defer cancel()
	}

	var onPartial func(string)
	if req.Stream {
		onPartial = ro.OnPartial
	}

	info := l.model.Info()
	start := time.Now()
	resp, err := model.Collect(callCtx, l.model, req, onPartial)
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogModelCall(l.logger, info.Name, tokens, time.Since(start), err)
	if err != nil {
		return model.Response{}, l.classifyModelError(ctx, info, err)
	}

	cc.Response = &resp
	if err := l.callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, cc); err != nil {
		return model.Response{}, err
	}

	return resp, nil
}

// classifyModelError keeps caller cancellation as is and reports every
// other failure, including the per-call timeout, as a transport error.
func (l *Loop) classifyModelError(ctx context.Context, info model.Info, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var te *core.TransportError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("no response within %s: %w", l.opts.CallTimeout, err)
	}
	return &core.TransportError{Service: info.Provider, Op: "generate", Err: err}
}

// requestTurns returns the history, prefixed with the resolved instruction
// when the history carries no system turn of its own.
func (l *Loop) requestTurns(ctx context.Context, h *core.History, ro *RunOptions) ([]core.Turn, error) {
	turns := h.Turns()
	if l.opts.Instruction.IsZero() || h.HasSystem() {
		return turns, nil
	}

	names := l.registry.Names()
	tools := make([]any, len(names))
	for i, n := range names {
		tools[i] = n
	}

	text, err := l.opts.Instruction.Resolve(InstructionContext{
		Context: ctx,
		History: turns,
		Vars: map[string]any{
			"session_id":     ro.SessionID,
			"max_iterations": l.opts.MaxIterations,
			"tools":          tools,
			"date":           time.Now().UTC().Format("2006-01-02"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}
	if text == "" {
		return turns, nil
	}

	return append([]core.Turn{core.NewSystemTurn(text)}, turns...), nil
}

// dispatch executes one call and returns the JSON payload for its tool turn.
func (l *Loop) dispatch(ctx context.Context, call core.ToolCall, ro *RunOptions, iteration int) string {
	cc := &CallbackContext{
		SessionID: ro.SessionID,
		Iteration: iteration,
		State:     StateDispatchingTool,
		Call:      &call,
		TurnState: ro.TurnState,
		Logger:    l.logger,
	}

	var result any
	if err := l.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, cc); err != nil {
		l.logger.Warn("agent.tool.vetoed", "tool", call.Name, "call_id", call.ID, "error", err.Error())
		result = tool.ErrorResult(err)
	} else {
		ro.TurnState.RecordCall(call)
		toolCtx := core.NewToolContext(ctx, call, ro.TurnState, l.logger)
		res, err := l.registry.Invoke(toolCtx, call.Name, json.RawMessage(call.Arguments))
		if err != nil {
			res = tool.ErrorResult(tool.AsToolError(call.Name, err))
		}
		result = res

		cc.Result = &result
		if err := l.callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, cc); err != nil {
			result = tool.ErrorResult(err)
		}
	}

	return encodeResult(result)
}

func (l *Loop) fail(ctx context.Context, ro *RunOptions, state State, iteration int, err error) error {
	cc := &CallbackContext{
		SessionID: ro.SessionID,
		Iteration: iteration,
		State:     state,
		Err:       err,
		TurnState: ro.TurnState,
		Logger:    l.logger,
	}
	if cbErr := l.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnError, cc); cbErr != nil {
		l.logger.Warn("agent.callback.on_error_failed", "error", cbErr.Error())
	}
	l.logger.Error("agent.loop.failed", "session_id", ro.SessionID, "state", state.String(), "error", err.Error())
	return err
}

// encodeResult serializes a tool result for the completion service.
func encodeResult(result any) string {
	data, err := json.Marshal(result)
	if err != nil {
		data, _ = json.Marshal(map[string]any{"error": "tool result is not serializable: " + err.Error()})
	}
	return string(data)
}

func addUsage(total *model.TokenUsage, u *model.TokenUsage) {
	if u == nil {
		return
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
