package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"jotium-go/internal/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiClient talks to any OpenAI-compatible chat completions endpoint (OpenAI, DeepSeek, ...).
type openaiClient struct {
	cfg    config.LLMConfig
	client openai.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
func NewOpenAIClient(cfg config.LLMConfig, opts ...option.RequestOption) Client {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	return &openaiClient{cfg: cfg, client: openai.NewClient(append(base, opts...)...)}
}

func (c *openaiClient) Model() string {
	return c.cfg.Model
}

func (c *openaiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	messages, err := toOpenAIMessages(req)
	if err != nil {
		return nil, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    c.cfg.Model,
		Messages: messages,
	}
	gen := defaultParams(req.Generation, c.cfg.Generation)
	if gen.Temperature != nil {
		params.Temperature = openai.Float(*gen.Temperature)
	}
	if gen.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*gen.MaxTokens))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		})
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	out := &Response{Content: Content{Role: RoleModel}}
	if len(completion.Choices) == 0 {
		return out, nil
	}
	choice := completion.Choices[0]
	out.FinishReason = choice.FinishReason
	if choice.Message.Content != "" {
		out.Content.Parts = append(out.Content.Parts, Part{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("invalid arguments for tool %s: %w", tc.Function.Name, err)
			}
		}
		out.Content.Parts = append(out.Content.Parts, Part{ToolCall: &ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args}})
	}
	return out, nil
}

func toOpenAIMessages(req *Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	for _, content := range req.Contents {
		var text []string
		var images []Blob
		var calls []openai.ChatCompletionMessageToolCallParam
		for _, p := range content.Parts {
			switch {
			case p.Thought:
				// 思考内容不回传给 OpenAI 兼容接口
			case p.ToolResult != nil:
				payload, err := json.Marshal(p.ToolResult.Response)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal result of tool %s: %w", p.ToolResult.Name, err)
				}
				messages = append(messages, openai.ToolMessage(string(payload), p.ToolResult.ID))
			case p.ToolCall != nil:
				args, err := json.Marshal(p.ToolCall.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal arguments of tool %s: %w", p.ToolCall.Name, err)
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   p.ToolCall.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      p.ToolCall.Name,
						Arguments: string(args),
					},
				})
			case p.InlineData != nil:
				images = append(images, *p.InlineData)
			case p.Text != "":
				text = append(text, p.Text)
			}
		}

		joined := strings.Join(text, "\n")
		switch content.Role {
		case RoleModel:
			if len(calls) > 0 {
				messages = append(messages, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: calls},
				})
			} else if joined != "" {
				messages = append(messages, openai.AssistantMessage(joined))
			}
		default:
			if len(images) > 0 {
				parts := []openai.ChatCompletionContentPartUnionParam{}
				if joined != "" {
					parts = append(parts, openai.TextContentPart(joined))
				}
				for _, img := range images {
					url := fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data))
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
				}
				messages = append(messages, openai.UserMessage(parts))
			} else if joined != "" {
				messages = append(messages, openai.UserMessage(joined))
			}
		}
	}
	return messages, nil
}
