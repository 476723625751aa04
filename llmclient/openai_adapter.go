package llmclient

import (
	"context"
	"errors"
	"strconv"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIAdapter implements ProviderAdapter using the official OpenAI Go SDK
// with native token streaming and incremental tool-call accumulation.
type OpenAIAdapter struct {
	client openai.Client
	apiKey string
}

// NewOpenAIAdapter creates an OpenAI adapter. A missing API key is not an
// error here; it surfaces as Unauthorized on the first completion attempt.
func NewOpenAIAdapter(apiKey, baseURL string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		apiKey: apiKey,
	}
}

func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends a blocking chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if a.apiKey == "" {
		return nil, Unauthorized(a.Name(), "OPENAI_API_KEY is not set")
	}

	params := a.translateRequest(req)
	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return nil, Unclassified(a.Name(), errors.New("completion returned no choices"))
	}

	choice := completion.Choices[0]
	msg := Message{Role: RoleAssistant, Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}

	return &Response{
		ID:           completion.ID,
		Model:        completion.Model,
		Provider:     a.Name(),
		Message:      msg,
		FinishReason: translateOpenAIFinish(string(choice.FinishReason), len(msg.ToolCalls)),
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

// Stream sends a streaming chat completion request. Tool-call argument
// fragments arrive token-by-token as partial JSON; they are buffered in the
// accumulator and only surface as canonical ToolCalls on the final response.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if a.apiKey == "" {
		return nil, Unauthorized(a.Name(), "OPENAI_API_KEY is not set")
	}

	params := a.translateRequest(req)
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if tool, ok := acc.JustFinishedToolCall(); ok {
				ch <- StreamEvent{
					Type:        ToolCallDelta,
					ToolName:    tool.Name,
					PartialJSON: tool.Arguments,
				}
			}

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				ch <- StreamEvent{Type: TextDelta, Delta: chunk.Choices[0].Delta.Content}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Err: a.translateError(ctx, err)}
			return
		}
		if len(acc.Choices) == 0 {
			ch <- StreamEvent{Type: StreamError, Err: Unclassified(a.Name(), errors.New("stream produced no choices"))}
			return
		}

		choice := acc.Choices[0]
		msg := Message{Role: RoleAssistant, Content: choice.Message.Content}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}

		usage := Usage{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:  int(acc.Usage.TotalTokens),
		}
		resp := &Response{
			ID:           acc.ID,
			Model:        acc.Model,
			Provider:     a.Name(),
			Message:      msg,
			FinishReason: translateOpenAIFinish(string(choice.FinishReason), len(msg.ToolCalls)),
			Usage:        usage,
		}
		ch <- StreamEvent{
			Type:         StreamFinish,
			FinishReason: &resp.FinishReason,
			Usage:        &usage,
			Response:     resp,
		}
	}()

	return ch, nil
}

func (a *OpenAIAdapter) translateRequest(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: translateOpenAIMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			})
		}
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case "named":
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
					Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: req.ToolChoice.ToolName},
				},
			}
		case "none", "required", "auto":
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(req.ToolChoice.Mode),
			}
		}
	}
	return params
}

func translateOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func translateOpenAIFinish(raw string, toolCalls int) FinishReason {
	switch {
	case toolCalls > 0:
		return FinishReason{Reason: "tool_calls", Raw: raw}
	case raw == "length":
		return FinishReason{Reason: "length", Raw: raw}
	case raw == "stop" || raw == "":
		return FinishReason{Reason: "stop", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

func (a *OpenAIAdapter) translateError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apierr *openai.Error
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
