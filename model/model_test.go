package model

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func TestNormalizeFinishReason(t *testing.T) {
	tests := map[string]StopReason{
		"stop":       StopNatural,
		"end_turn":   StopNatural,
		"length":     StopNatural,
		"max_tokens": StopNatural,
		"tool_calls": StopToolRequested,
		"tool_use":   StopToolRequested,
		"weird":      StopUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeFinishReason(in), in)
	}
}

func TestScriptedModel_ReplaysInOrderAndRecords(t *testing.T) {
	m := NewScriptedModel(Call("internal_search", `{"query":"q","person_name":"p"}`), Text("done"))
	ctx := context.Background()

	req := Request{Turns: []core.Turn{core.NewUserTurn("hi")}}
	first, err := Collect(ctx, m, req, nil)
	require.NoError(t, err)
	require.True(t, first.RequestsTools())
	assert.Equal(t, "internal_search", first.ToolCalls[0].Name)

	second, err := Collect(ctx, m, req, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", *second.Content)
	assert.Equal(t, StopNatural, second.StopReason)

	_, err = Collect(ctx, m, req, nil)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Len(t, m.Requests(), 3)
	assert.Equal(t, 0, m.Remaining())
}

func TestScriptedModel_StreamsPartials(t *testing.T) {
	m := NewScriptedModel(Text("one two three"))
	var sb strings.Builder
	final, err := Collect(context.Background(), m, Request{Stream: true}, func(s string) { sb.WriteString(s) })
	require.NoError(t, err)
	assert.Equal(t, "one two three", sb.String())
	assert.Equal(t, "one two three", *final.Content)
}

func TestScriptedModel_Failure(t *testing.T) {
	boom := errors.New("connection refused")
	m := NewScriptedModel(Fail(boom))
	_, err := Collect(context.Background(), m, Request{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestCollect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewScriptedModel(Text("x"))
	_, err := Collect(ctx, m, Request{}, nil)
	assert.Error(t, err)
}

func TestSend_StopsWhenContextDone(t *testing.T) {
	out := make(chan Response, 1)
	assert.True(t, Send(context.Background(), out, Response{ID: "a"}))

	// buffer full and nobody reading: a cancelled context must unblock the producer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan bool)
	go func() { done <- Send(ctx, out, Response{ID: "b"}) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full channel after cancellation")
	}
	assert.Equal(t, "a", (<-out).ID)
}
