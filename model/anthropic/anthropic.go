// Package anthropic provides a model wrapper for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/util"
	"github.com/hupe1980/ragmesh/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model anthropic.Model
	// Temperature is used when the request does not carry one.
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.1,
		MaxTokens:   4096,
	}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- transportError(err)
			return
		}
		model.Send(ctx, out, toResponse(resp))
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	temperature := m.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Turns),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if system := systemBlocks(req.Turns); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

func (m *Model) handleStreaming(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response, errCh chan<- error) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			errCh <- transportError(err)
			return
		}
		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				if !model.Send(ctx, out, model.Response{ID: message.ID, Partial: true, Content: core.StringPtr(delta.Text)}) {
					return
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- transportError(err)
		return
	}
	model.Send(ctx, out, toResponse(&message))
}

func toResponse(resp *anthropic.Message) model.Response {
	var (
		text  strings.Builder
		calls []core.ToolCall
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			args := "{}"
			if tu.Input != nil {
				if b, err := json.Marshal(tu.Input); err == nil && string(b) != "null" {
					args = string(b)
				}
			}
			calls = append(calls, core.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}

	finish := string(resp.StopReason)
	if finish == "" {
		finish = "end_turn"
	}
	r := model.Response{
		ID:           resp.ID,
		ToolCalls:    calls,
		FinishReason: finish,
		StopReason:   model.NormalizeFinishReason(finish),
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	if text.Len() > 0 {
		r.Content = core.StringPtr(text.String())
	}
	if len(calls) > 0 {
		r.StopReason = model.StopToolRequested
	}
	return r
}

// buildMessages converts turns into Anthropic messages. Tool results are sent
// as tool_result blocks in a user message; consecutive results are merged so
// they answer the preceding assistant message together.
func buildMessages(turns []core.Turn) []anthropic.MessageParam {
	var (
		messages []anthropic.MessageParam
		results  []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, t := range turns {
		switch t.Role {
		case core.RoleSystem:
			continue
		case core.RoleTool:
			results = append(results, anthropic.NewToolResultBlock(t.ToolCallID, t.Text(), isErrorResult(t.Text())))
		case core.RoleUser:
			flush()
			if t.Text() != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text())))
			}
		case core.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if t.Text() != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text()))
			}
			for _, c := range t.ToolCalls {
				var input any = map[string]any{}
				if c.Arguments != "" {
					if err := json.Unmarshal([]byte(c.Arguments), &input); err != nil {
						input = map[string]any{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ID, input, c.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flush()
	return messages
}

// isErrorResult reports whether a serialized tool result is an {"error": ...} payload.
func isErrorResult(s string) bool {
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return false
	}
	_, ok := payload["error"]
	return ok && len(payload) == 1
}

func systemBlocks(turns []core.Turn) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, t := range turns {
		if t.Role == core.RoleSystem && t.Text() != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: t.Text()})
		}
	}
	return blocks
}

// buildTools converts tool definitions to Anthropic tool params.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, def := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if def.Function.Parameters != nil {
			if props, ok := def.Function.Parameters["properties"]; ok {
				schema.Properties = props
			}
			schema.Required = util.RequiredFields(def.Function.Parameters)
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, def.Function.Name)
		if def.Function.Description != "" {
			out[i].OfTool.Description = anthropic.String(def.Function.Description)
		}
	}
	return out
}

func transportError(err error) error {
	return &core.TransportError{Service: "anthropic", Op: "messages", Err: err}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic", SupportsTools: true}
}
