package testutil

import (
	"fmt"

	"github.com/hupe1980/ragmesh/core"
)

// ConversationBuilder provides a fluent helper for constructing turn
// sequences in tests. Tool results answer the pending calls of the latest
// tool request in order.
// Example:
//
//	turns := NewConversationBuilder().
//	    System("sys").User("who?").
//	    ToolCall("internal_search", `{"query":"q","person_name":"p"}`).
//	    ToolResult(`{"found":false}`).
//	    Assistant("answer").
//	    Turns()
type ConversationBuilder struct {
	turns   []core.Turn
	pending []core.ToolCall
	seq     int
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder { return &ConversationBuilder{} }

// System appends a system turn (chainable).
func (b *ConversationBuilder) System(text string) *ConversationBuilder {
	return b.add(core.NewSystemTurn(text))
}

// User appends a user turn (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	return b.add(core.NewUserTurn(text))
}

// Assistant appends a natural-language assistant turn (chainable).
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	return b.add(core.NewAssistantTurn(text))
}

// ToolCall appends an assistant turn requesting a single call with a
// generated id (chainable).
func (b *ConversationBuilder) ToolCall(name, arguments string) *ConversationBuilder {
	return b.ToolCalls(core.ToolCall{Name: name, Arguments: arguments})
}

// ToolCalls appends an assistant turn requesting calls. Calls without an id
// get a deterministic "call_<n>" id (chainable).
func (b *ConversationBuilder) ToolCalls(calls ...core.ToolCall) *ConversationBuilder {
	calls = append([]core.ToolCall(nil), calls...)
	for i := range calls {
		if calls[i].ID == "" {
			b.seq++
			calls[i].ID = fmt.Sprintf("call_%d", b.seq)
		}
	}
	b.pending = append([]core.ToolCall(nil), calls...)
	b.turns = append(b.turns, core.NewToolRequestTurn(nil, calls...))
	return b
}

// ToolResult appends a tool turn answering the next pending call
// (chainable). It panics when no call is pending.
func (b *ConversationBuilder) ToolResult(result string) *ConversationBuilder {
	if len(b.pending) == 0 {
		panic("testutil: ToolResult without pending tool call")
	}
	call := b.pending[0]
	b.pending = b.pending[1:]
	b.turns = append(b.turns, core.NewToolResultTurn(call, result))
	return b
}

// Calls returns the calls of the most recent tool request.
func (b *ConversationBuilder) Calls() []core.ToolCall {
	for i := len(b.turns) - 1; i >= 0; i-- {
		if b.turns[i].RequestsTools() {
			return append([]core.ToolCall(nil), b.turns[i].ToolCalls...)
		}
	}
	return nil
}

// Turns returns a copy of the built turns.
func (b *ConversationBuilder) Turns() []core.Turn {
	return append([]core.Turn(nil), b.turns...)
}

// History builds a *core.History from the turns, validating tool references.
func (b *ConversationBuilder) History() (*core.History, error) {
	return core.NewHistory(b.turns...)
}

func (b *ConversationBuilder) add(t core.Turn) *ConversationBuilder {
	b.pending = nil
	b.turns = append(b.turns, t)
	return b
}
