package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"jotium-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseHelpers(t *testing.T) {
	resp := &Response{Content: Content{Role: RoleModel, Parts: []Part{
		{Text: "let me think", Thought: true},
		{Text: "Here you go."},
		{ToolCall: &ToolCall{Name: "a"}},
		{ToolCall: &ToolCall{Name: "b"}},
	}}}

	calls := resp.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.Equal(t, "b", calls[1].Name)

	thoughts, text := resp.TextParts()
	assert.Equal(t, []string{"let me think"}, thoughts)
	assert.Equal(t, []string{"Here you go."}, text)
}

func TestDefaultParams(t *testing.T) {
	cfg := config.LLMGenerationConfig{Temperature: 0.3, MaxTokens: 512}

	got := defaultParams(nil, cfg)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.3, *got.Temperature)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 512, *got.MaxTokens)

	override := 0.9
	got = defaultParams(&GenerationParams{Temperature: &override}, cfg)
	assert.Equal(t, 0.9, *got.Temperature)
	assert.Equal(t, 512, *got.MaxTokens)

	got = defaultParams(nil, config.LLMGenerationConfig{})
	assert.Nil(t, got.Temperature)
	assert.Nil(t, got.MaxTokens)
}

func TestNewClientUnsupportedProvider(t *testing.T) {
	_, err := NewClient(context.Background(), config.LLMConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOpenAIClientGenerate(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "deepseek-chat",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "checking",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_current_datetime", "arguments": "{\"format\":\"iso\"}"}
					}]
				}
			}]
		}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "deepseek-chat"})
	temp := 0.2
	resp, err := client.Generate(context.Background(), &Request{
		SystemInstruction: "be brief",
		Contents:          []Content{{Role: RoleUser, Parts: []Part{{Text: "what time is it"}}}},
		Tools: []ToolDeclaration{{
			Name:        "get_current_datetime",
			Description: "current time",
			Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		}},
		Generation: &GenerationParams{Temperature: &temp},
	})
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.FinishReason)
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "iso", calls[0].Args["format"])
	_, text := resp.TextParts()
	assert.Equal(t, []string{"checking"}, text)

	assert.Equal(t, "deepseek-chat", captured["model"])
	assert.Equal(t, 0.2, captured["temperature"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	tools := captured["tools"].([]interface{})
	require.Len(t, tools, 1)
}

func TestToOpenAIMessagesToolRoundTrip(t *testing.T) {
	msgs, err := toOpenAIMessages(&Request{Contents: []Content{
		{Role: RoleUser, Parts: []Part{{Text: "hi"}}},
		{Role: RoleModel, Parts: []Part{{Text: "thinking", Thought: true}, {ToolCall: &ToolCall{ID: "c1", Name: "t", Args: map[string]interface{}{"x": 1}}}}},
		{Role: RoleUser, Parts: []Part{{ToolResult: &ToolResult{ID: "c1", Name: "t", Response: map[string]interface{}{"result": "ok"}}}}},
	}})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.NotNil(t, msgs[0].OfUser)
	assert.NotNil(t, msgs[1].OfAssistant)
	assert.NotNil(t, msgs[2].OfTool)
}

func TestGeminiClientGenerate(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [
						{"text": "The user wants the time.", "thought": true},
						{"functionCall": {"name": "get_current_datetime", "args": {"format": "iso"}}}
					]
				},
				"finishReason": "STOP"
			}]
		}`)
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "gemini-2.5-pro"})
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), &Request{
		SystemInstruction: "be brief",
		Contents:          []Content{{Role: RoleUser, Parts: []Part{{Text: "time?"}}}},
		Tools:             []ToolDeclaration{{Name: "get_current_datetime", Parameters: map[string]interface{}{"type": "object"}}},
		IncludeThoughts:   true,
	})
	require.NoError(t, err)

	thoughts, _ := resp.TextParts()
	assert.Equal(t, []string{"The user wants the time."}, thoughts)
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_current_datetime", calls[0].Name)
	assert.Equal(t, "iso", calls[0].Args["format"])

	assert.Contains(t, captured, "systemInstruction")
	assert.Contains(t, captured, "tools")
}
