package core

import (
	"time"
)

// Role identifies the author of a Turn.
type Role string

const (
	// RoleSystem carries the instructions steering the completion service.
	RoleSystem Role = "system"
	// RoleUser is a message typed by the human side of the conversation.
	RoleUser Role = "user"
	// RoleAssistant is produced by the completion service.
	RoleAssistant Role = "assistant"
	// RoleTool carries the serialized result of a dispatched tool call.
	RoleTool Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a structured request from the completion service naming a
// tool and its JSON-encoded arguments.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // raw JSON object
}

// Turn is one message in a conversation History. After it has been
// appended it should be treated as immutable.
//
// Content is nil when an assistant turn only requests tools. ToolCalls is
// populated on assistant turns that request tools; ToolCallID / ToolName
// back-reference the triggering call on tool turns.
type Turn struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

func newTurn(role Role, content *string) Turn {
	return Turn{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewSystemTurn creates the instruction turn placed at the head of a history.
func NewSystemTurn(text string) Turn { return newTurn(RoleSystem, &text) }

// NewUserTurn creates a user-authored text turn.
func NewUserTurn(text string) Turn { return newTurn(RoleUser, &text) }

// NewAssistantTurn creates a natural-language assistant turn.
func NewAssistantTurn(text string) Turn { return newTurn(RoleAssistant, &text) }

// NewToolRequestTurn creates an assistant turn carrying tool calls. content
// may be nil when the model emitted no text alongside the request.
func NewToolRequestTurn(content *string, calls ...ToolCall) Turn {
	t := newTurn(RoleAssistant, content)
	t.ToolCalls = append([]ToolCall(nil), calls...)
	return t
}

// NewToolResultTurn records the serialized result of a dispatched call.
func NewToolResultTurn(call ToolCall, result string) Turn {
	t := newTurn(RoleTool, &result)
	t.ToolCallID = call.ID
	t.ToolName = call.Name
	return t
}

// Text returns the content or an empty string for nil content.
func (t Turn) Text() string {
	if t.Content == nil {
		return ""
	}
	return *t.Content
}

// HasContent reports whether the turn carries non-nil content.
func (t Turn) HasContent() bool { return t.Content != nil }

// RequestsTools reports whether the turn is an assistant tool request.
func (t Turn) RequestsTools() bool {
	return t.Role == RoleAssistant && len(t.ToolCalls) > 0
}
