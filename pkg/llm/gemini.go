package llm

import (
	"context"
	"fmt"

	"jotium-go/internal/config"

	"google.golang.org/genai"
)

type geminiClient struct {
	cfg    config.LLMConfig
	client *genai.Client
}

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiClient{cfg: cfg, client: client}, nil
}

func (c *geminiClient) Model() string {
	return c.cfg.Model
}

func (c *geminiClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents := make([]*genai.Content, 0, len(req.Contents))
	for _, content := range req.Contents {
		contents = append(contents, toGenaiContent(content))
	}

	gc := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}
	params := defaultParams(req.Generation, c.cfg.Generation)
	if params.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*params.Temperature))
	}
	if params.MaxTokens != nil {
		gc.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if req.IncludeThoughts {
		gc.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		gc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, gc)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	out := &Response{Content: Content{Role: RoleModel}}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}
	cand := resp.Candidates[0]
	out.FinishReason = string(cand.FinishReason)
	for _, p := range cand.Content.Parts {
		if p == nil {
			continue
		}
		out.Content.Parts = append(out.Content.Parts, fromGenaiPart(p))
	}
	return out, nil
}

func toGenaiContent(content Content) *genai.Content {
	gc := &genai.Content{Role: content.Role}
	for _, p := range content.Parts {
		part := &genai.Part{Thought: p.Thought, ThoughtSignature: p.Signature}
		switch {
		case p.ToolCall != nil:
			part.FunctionCall = &genai.FunctionCall{ID: p.ToolCall.ID, Name: p.ToolCall.Name, Args: p.ToolCall.Args}
		case p.ToolResult != nil:
			part.FunctionResponse = &genai.FunctionResponse{ID: p.ToolResult.ID, Name: p.ToolResult.Name, Response: p.ToolResult.Response}
		case p.InlineData != nil:
			part.InlineData = &genai.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
		default:
			part.Text = p.Text
		}
		gc.Parts = append(gc.Parts, part)
	}
	return gc
}

func fromGenaiPart(p *genai.Part) Part {
	part := Part{Text: p.Text, Thought: p.Thought, Signature: p.ThoughtSignature}
	if p.FunctionCall != nil {
		part.ToolCall = &ToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}
	}
	if p.InlineData != nil {
		part.InlineData = &Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
	}
	return part
}
