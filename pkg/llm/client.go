// Package llm provides a provider-neutral client for generative models with tool calling.
package llm

import (
	"context"
	"fmt"
	"strings"

	"jotium-go/internal/config"
)

// Roles used in conversation contents.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Generate sends the accumulated contents and returns a single candidate.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Model returns the model name this client talks to.
	Model() string
}

// Content is one turn of the conversation sent to the model.
type Content struct {
	Role  string
	Parts []Part
}

// Part is one piece of a Content. Exactly one of Text, InlineData, ToolCall or ToolResult is set.
type Part struct {
	Text    string
	Thought bool
	// Signature is an opaque provider token that must be echoed back with the part.
	Signature  []byte
	InlineData *Blob
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Blob is inline binary data such as an image.
type Blob struct {
	MIMEType string
	Data     []byte
}

// ToolCall is a structured request from the model to run a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ToolResult carries the outcome of a ToolCall back to the model.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]interface{}
}

// ToolDeclaration describes a tool to the model. Parameters is a JSON schema object.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
}

// Request is one model invocation.
type Request struct {
	SystemInstruction string
	Contents          []Content
	Tools             []ToolDeclaration
	Generation        *GenerationParams
	// IncludeThoughts asks the model to return its reasoning as thought parts.
	IncludeThoughts bool
}

// Response is the first candidate returned by the model.
type Response struct {
	Content      Content
	FinishReason string
}

// ToolCalls returns the tool call requests in the order the model produced them.
func (r *Response) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range r.Content.Parts {
		if p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// TextParts splits the response text into thoughts and answer text.
func (r *Response) TextParts() (thoughts, text []string) {
	for _, p := range r.Content.Parts {
		if p.Text == "" {
			continue
		}
		if p.Thought {
			thoughts = append(thoughts, p.Text)
		} else {
			text = append(text, p.Text)
		}
	}
	return thoughts, text
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		return NewGeminiClient(ctx, cfg)
	case "openai", "deepseek":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// defaultParams fills generation parameters from config when the request does not set them.
func defaultParams(gen *GenerationParams, cfg config.LLMGenerationConfig) GenerationParams {
	var out GenerationParams
	if gen != nil {
		out = *gen
	}
	if out.Temperature == nil && cfg.Temperature != 0 {
		t := cfg.Temperature
		out.Temperature = &t
	}
	if out.MaxTokens == nil && cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		out.MaxTokens = &m
	}
	return out
}
