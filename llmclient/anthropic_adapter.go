package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 8192

// AnthropicAdapter implements ProviderAdapter using the official Anthropic Go
// SDK. Streaming uses the SDK's event accumulator; partial tool-input JSON
// deltas are surfaced only as progress fragments until the message completes.
type AnthropicAdapter struct {
	client anthropic.Client
	apiKey string
}

// NewAnthropicAdapter creates an Anthropic adapter. A missing API key is not
// an error here; it surfaces as Unauthorized on the first completion attempt.
func NewAnthropicAdapter(apiKey, baseURL string) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
		apiKey: apiKey,
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Complete sends a blocking messages request.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if a.apiKey == "" {
		return nil, Unauthorized(a.Name(), "ANTHROPIC_API_KEY is not set")
	}

	msg, err := a.client.Messages.New(ctx, a.translateRequest(req))
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	return a.buildResponse(msg), nil
}

// Stream sends a streaming messages request.
func (a *AnthropicAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if a.apiKey == "" {
		return nil, Unauthorized(a.Name(), "ANTHROPIC_API_KEY is not set")
	}

	stream := a.client.Messages.NewStreaming(ctx, a.translateRequest(req))

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}
		msg := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				ch <- StreamEvent{Type: StreamError, Err: Unclassified(a.Name(), err)}
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					ch <- StreamEvent{Type: TextDelta, Delta: delta.Text}
				case anthropic.InputJSONDelta:
					// Partial tool-call arguments; buffered by Accumulate and
					// never promoted to a ToolCall until the block closes.
					ch <- StreamEvent{Type: ToolCallDelta, PartialJSON: delta.PartialJSON}
				}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Err: a.translateError(ctx, err)}
			return
		}

		resp := a.buildResponse(&msg)
		ch <- StreamEvent{
			Type:         StreamFinish,
			FinishReason: &resp.FinishReason,
			Usage:        &resp.Usage,
			Response:     resp,
		}
	}()

	return ch, nil
}

func (a *AnthropicAdapter) translateRequest(req Request) anthropic.MessageNewParams {
	messages, system := translateAnthropicMessages(req.Messages)

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, len(req.Tools))
		for i, t := range req.Tools {
			schema := anthropic.ToolInputSchemaParam{}
			if props, ok := t.Parameters["properties"]; ok {
				schema.Properties = props
			}
			schema.Required = requiredParams(t.Parameters)
			tools[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
			if t.Description != "" {
				tools[i].OfTool.Description = anthropic.String(t.Description)
			}
		}
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case "none":
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		case "required":
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		case "named":
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice.ToolName},
			}
		default:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}
	return params
}

// requiredParams extracts a schema's required list, which is []string when
// built in Go and []any when decoded from JSON.
func requiredParams(schema map[string]any) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []any:
		names := make([]string, 0, len(required))
		for _, v := range required {
			if name, ok := v.(string); ok {
				names = append(names, name)
			}
		}
		return names
	default:
		return nil
	}
}

// translateAnthropicMessages converts messages to Anthropic's shape: system
// text moves to the dedicated system parameter, tool results ride inside user
// messages as tool_result blocks, and assistant tool calls become tool_use
// blocks.
func translateAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})

		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(tc.Arguments), tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			result := anthropic.ToolResultBlockParam{
				ToolUseID: msg.ToolCallID,
				IsError:   anthropic.Bool(msg.IsError),
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: msg.Content}},
				},
			}
			out = append(out, anthropic.NewUserMessage(anthropic.ContentBlockParamUnion{OfToolResult: &result}))

		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out, system
}

func (a *AnthropicAdapter) buildResponse(msg *anthropic.Message) *Response {
	out := Message{Role: RoleAssistant}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += b.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: json.RawMessage(b.Input),
			})
		}
	}

	return &Response{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Provider:     a.Name(),
		Message:      out,
		FinishReason: translateAnthropicFinish(string(msg.StopReason), len(out.ToolCalls)),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func translateAnthropicFinish(raw string, toolCalls int) FinishReason {
	switch {
	case toolCalls > 0 || raw == "tool_use":
		return FinishReason{Reason: "tool_calls", Raw: raw}
	case raw == "max_tokens":
		return FinishReason{Reason: "length", Raw: raw}
	case raw == "end_turn" || raw == "stop_sequence" || raw == "":
		return FinishReason{Reason: "stop", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

func (a *AnthropicAdapter) translateError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		var retryAfter *float64
		if apierr.Response != nil {
			if v := apierr.Response.Header.Get("Retry-After"); v != "" {
				if secs, perr := strconv.ParseFloat(v, 64); perr == nil {
					retryAfter = &secs
				}
			}
		}
		return ClassifyStatus(apierr.StatusCode, a.Name(), apierr.Error(), retryAfter, err)
	}
	return Unavailable(a.Name(), "request failed", err)
}
