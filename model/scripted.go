package model

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/ragmesh/core"
)

// Step is one scripted reply: either a Response or an Err.
type Step struct {
	Response Response
	Err      error
}

// ScriptedModel replays a fixed queue of responses and records every request
// it receives. It is the deterministic completion service used by tests and
// offline demos.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	steps    []Step
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel with the given steps.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		steps: steps,
	}
}

// Enqueue appends steps to the script.
func (m *ScriptedModel) Enqueue(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Requests returns copies of all requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Remaining reports how many scripted steps have not been consumed.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

// Generate implements Model. Text of streamed responses is emitted word by
// word as partial responses before the final one.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	recorded := req
	recorded.Turns = append([]core.Turn(nil), req.Turns...)
	m.requests = append(m.requests, recorded)
	var (
		step Step
		ok   bool
	)
	if len(m.steps) > 0 {
		step, m.steps, ok = m.steps[0], m.steps[1:], true
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if !ok {
			errCh <- ErrScriptExhausted
			return
		}
		if step.Err != nil {
			errCh <- step.Err
			return
		}
		if req.Stream && step.Response.Content != nil {
			for _, w := range strings.SplitAfter(*step.Response.Content, " ") {
				if !Send(ctx, respCh, Response{Partial: true, Content: core.StringPtr(w)}) {
					errCh <- ctx.Err()
					return
				}
			}
		}
		if !Send(ctx, respCh, step.Response) {
			errCh <- ctx.Err()
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Text scripts a natural-stop answer.
func Text(content string) Step {
	return Step{Response: Response{
		ID:           core.NewID(),
		Content:      core.StringPtr(content),
		StopReason:   StopNatural,
		FinishReason: "stop",
	}}
}

// Empty scripts a natural stop without content.
func Empty() Step {
	return Step{Response: Response{ID: core.NewID(), StopReason: StopNatural, FinishReason: "stop"}}
}

// Call scripts a tool request for a single call with raw JSON arguments.
func Call(name, arguments string) Step {
	return Calls(core.ToolCall{ID: "call_" + core.NewID(), Name: name, Arguments: arguments})
}

// Calls scripts a tool request carrying several calls.
func Calls(calls ...core.ToolCall) Step {
	return Step{Response: Response{
		ID:           core.NewID(),
		ToolCalls:    calls,
		StopReason:   StopToolRequested,
		FinishReason: "tool_calls",
	}}
}

// Fail scripts a transport failure.
func Fail(err error) Step {
	return Step{Err: err}
}
