package model

import (
	"context"

	"github.com/hupe1980/ragmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewToolDefinition builds a function-typed ToolDefinition.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type:     "function",
		Function: FunctionDefinition{Name: name, Description: description, Parameters: parameters},
	}
}

// Request is the provider-neutral completion input: the full ordered
// conversation, the tool catalog and sampling hints.
type Request struct {
	Turns       []core.Turn      `json:"turns"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StopReason is the provider-neutral reason a completion ended.
type StopReason string

const (
	// StopNatural means the model produced its final answer.
	StopNatural StopReason = "natural"
	// StopToolRequested means the model asked for one or more tool calls.
	StopToolRequested StopReason = "tool_requested"
	// StopUnknown is used for finish reasons no mapping exists for.
	StopUnknown StopReason = "unknown"
)

// NormalizeFinishReason maps vendor finish reasons onto StopReason.
func NormalizeFinishReason(reason string) StopReason {
	switch reason {
	case "stop", "end_turn", "stop_sequence", "length", "max_tokens":
		return StopNatural
	case "tool_calls", "tool_use", "function_call":
		return StopToolRequested
	default:
		return StopUnknown
	}
}

// Response is a (partial or final) chunk emitted by a model. Partial
// responses carry the incremental text delta in Content; the final response
// carries the complete text (nil when the model produced none) and any tool
// calls.
type Response struct {
	ID           string          `json:"id"`
	Partial      bool            `json:"partial"`
	Content      *string         `json:"content,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	StopReason   StopReason      `json:"stop_reason"`
	FinishReason string          `json:"finish_reason"` // raw vendor value
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// RequestsTools reports whether the response asks for tool execution.
// A response carrying tool calls is treated as a tool request even when
// the vendor reported a different finish reason.
func (r Response) RequestsTools() bool {
	return len(r.ToolCalls) > 0
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the completion service contract. Generate streams zero or more
// partial responses followed by exactly one final response, or reports an
// error on the error channel. Both channels are closed when done.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Send delivers r on out unless ctx is done first. Producers stop when it
// returns false so an abandoned Generate does not leak its goroutine.
func Send(ctx context.Context, out chan<- Response, r Response) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a Generate call and returns the final response. Partial
// text deltas are forwarded to onPartial when it is non-nil.
func Collect(ctx context.Context, m Model, req Request, onPartial func(string)) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	respCh, errCh := m.Generate(ctx, req)
	var (
		final    Response
		gotFinal bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if onPartial != nil && r.Content != nil {
					onPartial(*r.Content)
				}
				continue
			}
			final, gotFinal = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}
	if !gotFinal {
		return Response{}, ErrNoResponse
	}
	return final, nil
}
