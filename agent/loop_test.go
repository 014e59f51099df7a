package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/model"
	"github.com/hupe1980/ragmesh/tool"
)

type echoArgs struct {
	Text string `json:"text" description:"Text to echo"`
}

func newEchoRegistry(t *testing.T, calls *int32) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(tool.NewTypedFunctionTool("echo", "Echo text back",
		func(_ *core.ToolContext, args echoArgs) (any, error) {
			if calls != nil {
				atomic.AddInt32(calls, 1)
			}
			return map[string]any{"echo": args.Text}, nil
		}))
	return reg
}

func newHistory(t *testing.T, text string) *core.History {
	t.Helper()
	h, err := core.NewHistory(core.NewUserTurn(text))
	require.NoError(t, err)
	return h
}

func roles(turns []core.Turn) []core.Role {
	out := make([]core.Role, len(turns))
	for i, tr := range turns {
		out[i] = tr.Role
	}
	return out
}

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)
	return args.Get(0).(<-chan model.Response), args.Get(1).(<-chan error)
}

func (m *mockModel) Info() model.Info { return model.Info{Name: "mock", Provider: "mock"} }

func TestLoop_NaturalStop(t *testing.T) {
	m := model.NewScriptedModel(model.Text("Hello there"))
	loop := NewLoop(m, newEchoRegistry(t, nil))
	h := newHistory(t, "hi")

	res, err := loop.Run(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", res.Final.Text())
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant}, roles(h.Turns()))

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Temperature)
	assert.InDelta(t, 0.1, *reqs[0].Temperature, 1e-9)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Function.Name)
}

func TestLoop_ToolRoundTrip(t *testing.T) {
	var calls int32
	m := model.NewScriptedModel(
		model.Call("echo", `{"text":"ping"}`),
		model.Text("pong"),
	)
	loop := NewLoop(m, newEchoRegistry(t, &calls))
	h := newHistory(t, "say ping")
	ts := core.NewTurnState()

	res, err := loop.Run(context.Background(), h, func(o *RunOptions) { o.TurnState = ts })
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, "pong", res.Final.Text())

	turns := h.Turns()
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant, core.RoleTool, core.RoleAssistant}, roles(turns))
	assert.Nil(t, turns[1].Content)
	require.Len(t, turns[1].ToolCalls, 1)
	assert.Equal(t, turns[1].ToolCalls[0].ID, turns[2].ToolCallID)
	assert.Equal(t, "echo", turns[2].ToolName)
	assert.JSONEq(t, `{"echo":"ping"}`, turns[2].Text())

	// the follow-up request carries the tool result
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Turns, 3)

	require.Len(t, ts.Calls(), 1)
	assert.Equal(t, "echo", ts.Calls()[0].Name)
}

func TestLoop_DispatchFirstDropsExtraCalls(t *testing.T) {
	var calls int32
	m := model.NewScriptedModel(
		model.Calls(
			core.ToolCall{ID: "a", Name: "echo", Arguments: `{"text":"one"}`},
			core.ToolCall{ID: "b", Name: "echo", Arguments: `{"text":"two"}`},
		),
		model.Text("done"),
	)
	loop := NewLoop(m, newEchoRegistry(t, &calls))
	h := newHistory(t, "q")

	_, err := loop.Run(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
	turns := h.Turns()
	require.Len(t, turns, 4)
	require.Len(t, turns[1].ToolCalls, 1)
	assert.Equal(t, "a", turns[1].ToolCalls[0].ID)
	assert.Equal(t, "a", turns[2].ToolCallID)
}

func TestLoop_DispatchAll(t *testing.T) {
	var calls int32
	m := model.NewScriptedModel(
		model.Calls(
			core.ToolCall{ID: "a", Name: "echo", Arguments: `{"text":"one"}`},
			core.ToolCall{ID: "b", Name: "echo", Arguments: `{"text":"two"}`},
		),
		model.Text("done"),
	)
	loop := NewLoop(m, newEchoRegistry(t, &calls), func(o *Options) { o.DispatchMode = DispatchAll })
	h := newHistory(t, "q")

	res, err := loop.Run(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls)
	assert.Equal(t, 2, res.ToolCalls)
	turns := h.Turns()
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant, core.RoleTool, core.RoleTool, core.RoleAssistant}, roles(turns))
	assert.Equal(t, "a", turns[2].ToolCallID)
	assert.JSONEq(t, `{"echo":"one"}`, turns[2].Text())
	assert.Equal(t, "b", turns[3].ToolCallID)
	assert.JSONEq(t, `{"echo":"two"}`, turns[3].Text())
}

func TestLoop_AssignsMissingCallIDs(t *testing.T) {
	m := model.NewScriptedModel(
		model.Calls(core.ToolCall{Name: "echo", Arguments: `{"text":"x"}`}),
		model.Text("done"),
	)
	loop := NewLoop(m, newEchoRegistry(t, nil))
	h := newHistory(t, "q")

	_, err := loop.Run(context.Background(), h)
	require.NoError(t, err)

	turns := h.Turns()
	id := turns[1].ToolCalls[0].ID
	assert.True(t, strings.HasPrefix(id, "call_"))
	assert.Equal(t, id, turns[2].ToolCallID)
}

func TestLoop_ToolErrorsBecomeResults(t *testing.T) {
	tests := []struct {
		name string
		call core.ToolCall
		want string
	}{
		{"unknown tool", core.ToolCall{ID: "1", Name: "missing", Arguments: `{}`}, "missing"},
		{"missing argument", core.ToolCall{ID: "1", Name: "echo", Arguments: `{}`}, "text"},
		{"malformed json", core.ToolCall{ID: "1", Name: "echo", Arguments: `{"text":`}, "echo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.NewScriptedModel(model.Calls(tt.call), model.Text("recovered"))
			loop := NewLoop(m, newEchoRegistry(t, nil))
			h := newHistory(t, "q")

			res, err := loop.Run(context.Background(), h)
			require.NoError(t, err)
			assert.Equal(t, "recovered", res.Final.Text())

			payload := h.Turns()[2].Text()
			assert.Contains(t, payload, `"error"`)
			assert.Contains(t, payload, tt.want)
		})
	}
}

func TestLoop_HandlerFailureBecomesResult(t *testing.T) {
	reg := tool.NewRegistry()
	reg.MustRegister(tool.NewFunctionTool("boom", "Always fails", map[string]any{"type": "object"},
		func(*core.ToolContext, map[string]any) (any, error) { return nil, errors.New("kaput") }))

	m := model.NewScriptedModel(model.Call("boom", `{}`), model.Text("sorry"))
	h := newHistory(t, "q")

	_, err := NewLoop(m, reg).Run(context.Background(), h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"kaput"}`, h.Turns()[2].Text())
}

func TestLoop_IterationCap(t *testing.T) {
	m := model.NewScriptedModel(
		model.Call("echo", `{"text":"1"}`),
		model.Call("echo", `{"text":"2"}`),
		model.Call("echo", `{"text":"3"}`),
	)
	loop := NewLoop(m, newEchoRegistry(t, nil), func(o *Options) { o.MaxIterations = 2 })

	_, err := loop.Run(context.Background(), newHistory(t, "q"))
	require.Error(t, err)

	var loopErr *ToolLoopExceededError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 2, loopErr.Limit)
	assert.Equal(t, "echo", loopErr.LastTool)
	assert.Equal(t, 0, m.Remaining())
}

func TestLoop_IterationCapCannotBeDisabled(t *testing.T) {
	for _, max := range []int{0, -3} {
		steps := make([]model.Step, 0, 20)
		for i := 0; i < 20; i++ {
			steps = append(steps, model.Call("echo", `{"text":"again"}`))
		}
		m := model.NewScriptedModel(steps...)
		var calls int32
		loop := NewLoop(m, newEchoRegistry(t, &calls), func(o *Options) { o.MaxIterations = max })

		_, err := loop.Run(context.Background(), newHistory(t, "q"))

		var loopErr *ToolLoopExceededError
		require.ErrorAs(t, err, &loopErr, "max=%d", max)
		assert.Equal(t, DefaultMaxIterations, loopErr.Limit)
		assert.Equal(t, int32(DefaultMaxIterations), atomic.LoadInt32(&calls))
	}
}

func TestLoop_ModelFailureWrapsTransportError(t *testing.T) {
	m := model.NewScriptedModel(model.Call("echo", `{"text":"x"}`), model.Fail(errors.New("connection refused")))
	loop := NewLoop(m, newEchoRegistry(t, nil))

	_, err := loop.Run(context.Background(), newHistory(t, "q"))
	require.Error(t, err)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, StateAwaitingModel, modelErr.State)
	assert.Equal(t, "echo", modelErr.LastTool)

	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "scripted", te.Service)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLoop_CallTimeout(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(
		(<-chan model.Response)(make(chan model.Response)),
		(<-chan error)(make(chan error)),
	)
	loop := NewLoop(m, nil, func(o *Options) { o.CallTimeout = 20 * time.Millisecond })

	_, err := loop.Run(context.Background(), newHistory(t, "q"))
	require.Error(t, err)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "mock", te.Service)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	m.AssertNumberOfCalls(t, "Generate", 1)
}

func TestLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := model.NewScriptedModel(model.Text("never"))
	_, err := NewLoop(m, nil).Run(ctx, newHistory(t, "q"))

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.ErrorIs(t, err, context.Canceled)

	var te *core.TransportError
	assert.False(t, errors.As(err, &te))
}

func TestLoop_EmptyFinalContent(t *testing.T) {
	m := model.NewScriptedModel(model.Empty())
	h := newHistory(t, "q")

	res, err := NewLoop(m, nil).Run(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, res.Final.HasContent())
	assert.Equal(t, 2, h.Len())
}

func TestLoop_Streaming(t *testing.T) {
	m := model.NewScriptedModel(model.Text("hello streaming world"))
	loop := NewLoop(m, nil, func(o *Options) { o.Stream = true })

	var deltas []string
	res, err := loop.Run(context.Background(), newHistory(t, "q"), func(o *RunOptions) {
		o.OnPartial = func(s string) { deltas = append(deltas, s) }
	})
	require.NoError(t, err)

	assert.Greater(t, len(deltas), 1)
	assert.Equal(t, "hello streaming world", strings.Join(deltas, ""))
	assert.Equal(t, "hello streaming world", res.Final.Text())
}

func TestLoop_InstructionPrependedWithoutSystemTurn(t *testing.T) {
	m := model.NewScriptedModel(model.Text("a"), model.Text("b"))
	loop := NewLoop(m, newEchoRegistry(t, nil), func(o *Options) {
		o.Instruction = NewInstructionFromText(`Use {{join ", " .tools}}.`)
	})

	_, err := loop.Run(context.Background(), newHistory(t, "q"))
	require.NoError(t, err)

	h, err := core.NewHistory(core.NewSystemTurn("custom"), core.NewUserTurn("q"))
	require.NoError(t, err)
	_, err = loop.Run(context.Background(), h)
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, core.RoleSystem, reqs[0].Turns[0].Role)
	assert.Equal(t, "Use echo.", reqs[0].Turns[0].Text())
	assert.Equal(t, "custom", reqs[1].Turns[0].Text())
	assert.Len(t, reqs[1].Turns, 2)
}

func TestLoop_BeforeToolVeto(t *testing.T) {
	var calls int32
	m := model.NewScriptedModel(model.Call("echo", `{"text":"x"}`), model.Text("ok"))
	loop := NewLoop(m, newEchoRegistry(t, &calls))
	loop.Callbacks().RegisterCallback(NewFunctionCallback(CallbackBeforeTool,
		func(_ context.Context, cc *CallbackContext) error {
			return tool.NewToolError(cc.Call.Name, "not allowed", tool.CodePolicyViolation)
		}))
	h := newHistory(t, "q")
	ts := core.NewTurnState()

	_, err := loop.Run(context.Background(), h, func(o *RunOptions) { o.TurnState = ts })
	require.NoError(t, err)

	assert.Equal(t, int32(0), calls)
	assert.JSONEq(t, `{"error":"not allowed"}`, h.Turns()[2].Text())
	assert.Empty(t, ts.Calls())
}

func TestLoop_AfterToolReplacesResult(t *testing.T) {
	m := model.NewScriptedModel(model.Call("echo", `{"text":"x"}`), model.Text("ok"))
	loop := NewLoop(m, newEchoRegistry(t, nil))
	loop.Callbacks().RegisterCallback(NewFunctionCallback(CallbackAfterTool,
		func(_ context.Context, cc *CallbackContext) error {
			*cc.Result = map[string]any{"redacted": true}
			return nil
		}))
	h := newHistory(t, "q")

	_, err := loop.Run(context.Background(), h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"redacted":true}`, h.Turns()[2].Text())
}

func TestLoop_BeforeModelErrorAborts(t *testing.T) {
	m := model.NewScriptedModel(model.Text("never"))
	loop := NewLoop(m, nil)
	loop.Callbacks().RegisterCallback(NewFunctionCallback(CallbackBeforeModel,
		func(context.Context, *CallbackContext) error { return errors.New("budget exhausted") }))

	var seen error
	loop.Callbacks().RegisterCallback(NewFunctionCallback(CallbackOnError,
		func(_ context.Context, cc *CallbackContext) error {
			seen = cc.Err
			return errors.New("ignored")
		}))

	_, err := loop.Run(context.Background(), newHistory(t, "q"))
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Contains(t, err.Error(), "budget exhausted")
	assert.Equal(t, err, seen)
	assert.Equal(t, 1, m.Remaining())
}

func TestLoop_AccumulatesUsage(t *testing.T) {
	first := model.Call("echo", `{"text":"x"}`)
	first.Response.Usage = &model.TokenUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}
	second := model.Text("ok")
	second.Response.Usage = &model.TokenUsage{PromptTokens: 20, CompletionTokens: 3, TotalTokens: 23}

	res, err := NewLoop(model.NewScriptedModel(first, second), newEchoRegistry(t, nil)).
		Run(context.Background(), newHistory(t, "q"))
	require.NoError(t, err)
	assert.Equal(t, model.TokenUsage{PromptTokens: 30, CompletionTokens: 5, TotalTokens: 35}, res.Usage)
}

func TestCallbackManager_StopsOnFirstError(t *testing.T) {
	cm := NewCallbackManager()
	var order []string
	cm.RegisterCallback(
		NewFunctionCallback(CallbackAfterModel, func(context.Context, *CallbackContext) error {
			order = append(order, "first")
			return errors.New("stop")
		}),
		NewFunctionCallback(CallbackAfterModel, func(context.Context, *CallbackContext) error {
			order = append(order, "second")
			return nil
		}),
		NewLoggingCallback(CallbackBeforeModel, nil),
	)

	err := cm.ExecuteCallbacks(context.Background(), CallbackAfterModel, &CallbackContext{})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"first"}, order)

	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackBeforeModel, &CallbackContext{}))
	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackOnError, &CallbackContext{}))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_model", StateAwaitingModel.String())
	assert.Equal(t, "dispatching_tool", StateDispatchingTool.String())
	assert.Equal(t, "done", StateDone.String())
}
