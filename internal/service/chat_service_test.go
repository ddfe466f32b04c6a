package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jotium-go/internal/config"
	"jotium-go/internal/model"
	"jotium-go/internal/repository"
	"jotium-go/internal/tools"
	"jotium-go/pkg/llm"
)

// scriptedClient 按顺序返回预设的响应，并记录每次收到的请求。
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llm.Response
	// next 不为 nil 时优先使用，可以用来模拟无限的工具调用或阻塞
	next     func(ctx context.Context, call int) (*llm.Response, error)
	requests []llm.Request
}

func (c *scriptedClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	snapshot := *req
	snapshot.Contents = append([]llm.Content(nil), req.Contents...)
	c.requests = append(c.requests, snapshot)
	call := len(c.requests)
	c.mu.Unlock()

	if c.next != nil {
		return c.next(ctx, call)
	}
	if call > len(c.responses) {
		return nil, errors.New("unexpected model call")
	}
	return c.responses[call-1], nil
}

func (c *scriptedClient) Model() string {
	return "scripted"
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: llm.Content{Role: llm.RoleModel, Parts: []llm.Part{{Text: text}}}, FinishReason: "STOP"}
}

func toolResponse(calls ...llm.ToolCall) *llm.Response {
	parts := make([]llm.Part, 0, len(calls))
	for i := range calls {
		parts = append(parts, llm.Part{ToolCall: &calls[i]})
	}
	return &llm.Response{Content: llm.Content{Role: llm.RoleModel, Parts: parts}}
}

type fixture struct {
	mr         *miniredis.Miniredis
	rdb        *redis.Client
	convRepo   repository.ConversationRepository
	memoryRepo repository.MemoryRepository
	registry   *tools.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := config.SessionConfig{ChatHistoryLimit: 100, ConversationTTL: time.Hour, MemoryTTL: 2 * time.Hour, MaxConversationsPerUser: 50}
	return &fixture{
		mr:         mr,
		rdb:        rdb,
		convRepo:   repository.NewConversationRepository(rdb, cfg),
		memoryRepo: repository.NewMemoryRepository(rdb, cfg),
		registry:   tools.NewRegistry(),
	}
}

func (f *fixture) service(client llm.Client, cfg config.AgentConfig) ChatService {
	assembler := NewContextAssembler(f.convRepo, f.memoryRepo, "You are a test agent.", 10, 10)
	return NewChatService(client, f.registry, assembler, f.convRepo, nil, cfg)
}

func recordingTool(name string, calls *[]string, out interface{}, err error) tools.Tool {
	return tools.NewFunctionTool(name, name, map[string]interface{}{"type": "object"}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		*calls = append(*calls, name)
		return out, err
	})
}

var defaultOpts = TurnOptions{UserID: "u1", ConversationID: "c1", IncludeHistory: true}

func TestRunTurnWithToolCall(t *testing.T) {
	f := newFixture(t)
	var invoked []string
	f.registry.Register(recordingTool("get_time", &invoked, map[string]interface{}{"time": "noon"}, nil))

	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{ID: "call_1", Name: "get_time", Args: map[string]interface{}{"tz": "UTC"}}),
		textResponse("It is noon."),
	}}
	res, err := f.service(client, config.AgentConfig{}).RunTurn(context.Background(), TurnInput{Text: "What time is it?"}, defaultOpts)
	require.NoError(t, err)

	assert.Equal(t, "It is noon.", res.Text)
	assert.Equal(t, StopCompleted, res.StopReason)
	assert.False(t, res.ForcedStop)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_time", res.ToolCalls[0].Name)
	assert.Equal(t, []string{"get_time"}, invoked)

	require.Len(t, client.requests, 2)
	second := client.requests[1].Contents
	require.Len(t, second, 3)
	result := second[2].Parts[0].ToolResult
	require.NotNil(t, result)
	assert.Equal(t, "call_1", result.ID)
	assert.Equal(t, map[string]interface{}{"time": "noon"}, result.Response)

	history, err := f.convRepo.GetChatHistory(context.Background(), "u1", "c1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "What time is it?", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	require.NotNil(t, history[1].Metadata)
	assert.Len(t, history[1].Metadata.ToolCalls, 1)
}

func TestRunTurnExecutesAllToolCallsInOrder(t *testing.T) {
	f := newFixture(t)
	var invoked []string
	f.registry.Register(recordingTool("first", &invoked, "a", nil))
	f.registry.Register(recordingTool("second", &invoked, nil, errors.New("boom")))

	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{Name: "second"}, llm.ToolCall{Name: "first"}),
		textResponse("done"),
	}}
	res, err := f.service(client, config.AgentConfig{}).RunTurn(context.Background(), TurnInput{Text: "go"}, TurnOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"second", "first"}, invoked)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "second", res.ToolCalls[0].Name)
	assert.Equal(t, "first", res.ToolCalls[1].Name)

	parts := client.requests[1].Contents[2].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, map[string]interface{}{"error": "boom"}, parts[0].ToolResult.Response)
	assert.Equal(t, map[string]interface{}{"result": "a"}, parts[1].ToolResult.Response)
}

func TestRunTurnUnknownToolFailsBeforeExecuting(t *testing.T) {
	f := newFixture(t)
	var invoked []string
	f.registry.Register(recordingTool("known", &invoked, "ok", nil))

	client := &scriptedClient{responses: []*llm.Response{
		toolResponse(llm.ToolCall{Name: "known"}, llm.ToolCall{Name: "missing"}),
	}}
	_, err := f.service(client, config.AgentConfig{}).RunTurn(context.Background(), TurnInput{Text: "hi"}, defaultOpts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
	var nf *tools.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.Name)
	assert.Empty(t, invoked)

	n, err := f.convRepo.GetMessageCount(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunTurnStopsAtMaxIterations(t *testing.T) {
	f := newFixture(t)
	var invoked []string
	f.registry.Register(recordingTool("loop", &invoked, "again", nil))

	client := &scriptedClient{next: func(ctx context.Context, call int) (*llm.Response, error) {
		return toolResponse(llm.ToolCall{Name: "loop"}), nil
	}}
	res, err := f.service(client, config.AgentConfig{MaxIterations: 3}).RunTurn(context.Background(), TurnInput{Text: "spin"}, defaultOpts)
	require.NoError(t, err)

	assert.True(t, res.ForcedStop)
	assert.Equal(t, StopMaxIterations, res.StopReason)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, client.requests, 3)
	assert.Len(t, invoked, 3)
	assert.Equal(t, fallbackAnswer, res.Text)

	history, err := f.convRepo.GetChatHistory(context.Background(), "u1", "c1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, StopMaxIterations, history[1].Metadata.StopReason)
}

func TestRunTurnTimeout(t *testing.T) {
	f := newFixture(t)
	client := &scriptedClient{next: func(ctx context.Context, call int) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	res, err := f.service(client, config.AgentConfig{TurnTimeout: 20 * time.Millisecond}).RunTurn(context.Background(), TurnInput{Text: "slow"}, TurnOptions{})
	require.NoError(t, err)
	assert.True(t, res.ForcedStop)
	assert.Equal(t, StopTimeout, res.StopReason)
	assert.Equal(t, fallbackAnswer, res.Text)
}

func TestRunTurnCallerCancellationIsError(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{next: func(c context.Context, call int) (*llm.Response, error) {
		cancel()
		<-c.Done()
		return nil, c.Err()
	}}
	_, err := f.service(client, config.AgentConfig{}).RunTurn(ctx, TurnInput{Text: "bye"}, TurnOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunTurnModelError(t *testing.T) {
	f := newFixture(t)
	client := &scriptedClient{next: func(ctx context.Context, call int) (*llm.Response, error) {
		return nil, errors.New("503 unavailable")
	}}
	_, err := f.service(client, config.AgentConfig{}).RunTurn(context.Background(), TurnInput{Text: "hi"}, TurnOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModel))
	assert.Contains(t, err.Error(), "agent error")
	assert.Contains(t, err.Error(), "503 unavailable")
}

func TestRunTurnRejectsEmptyInput(t *testing.T) {
	f := newFixture(t)
	client := &scriptedClient{}
	_, err := f.service(client, config.AgentConfig{}).RunTurn(context.Background(), TurnInput{Text: "   "}, defaultOpts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Empty(t, client.requests)
}

func TestRunTurnCollectsThoughts(t *testing.T) {
	f := newFixture(t)
	client := &scriptedClient{responses: []*llm.Response{{
		Content: llm.Content{Role: llm.RoleModel, Parts: []llm.Part{
			{Text: "considering", Thought: true},
			{Text: "Hello "},
			{Text: "there."},
		}},
	}}}
	res, err := f.service(client, config.AgentConfig{}).RunTurn(context.Background(), TurnInput{Text: "hi"}, TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", res.Text)
	assert.Equal(t, "considering", res.Thoughts)
	assert.NotNil(t, res.ToolCalls)
}

func TestRunTurnPersistenceFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	client := &scriptedClient{responses: []*llm.Response{textResponse("still here")}}
	svc := f.service(client, config.AgentConfig{PersistTimeout: 100 * time.Millisecond})

	f.mr.SetError("redis down")
	res, err := svc.RunTurn(context.Background(), TurnInput{Text: "hi"}, defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, "still here", res.Text)
}

func TestRunTurnUsesHistoryAndMemories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.convRepo.SaveMessage(ctx, "u1", "c1", model.Message{Role: model.RoleUser, Content: "my name is Ada"})
	require.NoError(t, err)
	_, err = f.convRepo.SaveMessage(ctx, "u1", "c1", model.Message{Role: model.RoleAssistant, Content: "Hi Ada"})
	require.NoError(t, err)
	_, err = f.memoryRepo.StoreMemory(ctx, "u1", "name", "Ada", nil)
	require.NoError(t, err)

	client := &scriptedClient{responses: []*llm.Response{textResponse("Ada"), textResponse("Ada again")}}
	svc := f.service(client, config.AgentConfig{})
	_, err = svc.RunTurn(ctx, TurnInput{Text: "what is my name?"}, defaultOpts)
	require.NoError(t, err)

	req := client.requests[0]
	require.Len(t, req.Contents, 3)
	assert.Equal(t, llm.RoleUser, req.Contents[0].Role)
	assert.Equal(t, llm.RoleModel, req.Contents[1].Role)
	assert.Equal(t, "what is my name?", req.Contents[2].Parts[0].Text)
	assert.Contains(t, req.SystemInstruction, "You are a test agent.")
	assert.Contains(t, req.SystemInstruction, "- name: Ada")

	// 系统提示词模板不会被累积修改
	_, err = svc.RunTurn(ctx, TurnInput{Text: "again?"}, TurnOptions{UserID: "u1", ConversationID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, req.SystemInstruction, client.requests[1].SystemInstruction)
}

func TestRunTurnImageOnly(t *testing.T) {
	f := newFixture(t)
	client := &scriptedClient{responses: []*llm.Response{textResponse("a cat")}}
	res, err := f.service(client, config.AgentConfig{}).RunTurn(context.Background(),
		TurnInput{Images: []ImageInput{{MIMEType: "image/png", Data: []byte{1, 2, 3}}}}, defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, "a cat", res.Text)

	parts := client.requests[0].Contents[0].Parts
	require.Len(t, parts, 1)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)

	// 没有文本的用户消息不保存，只保存助手回答
	history, err := f.convRepo.GetChatHistory(context.Background(), "u1", "c1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.RoleAssistant, history[0].Role)
}

func TestRunTurnEmptyResponseUsesFallback(t *testing.T) {
	f := newFixture(t)
	client := &scriptedClient{responses: []*llm.Response{
		{Content: llm.Content{Role: llm.RoleModel}, FinishReason: "SAFETY"},
		textResponse("second answer"),
	}}
	svc := f.service(client, config.AgentConfig{})

	res, err := svc.RunTurn(context.Background(), TurnInput{Text: "first"}, defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, StopEmptyResponse, res.StopReason)
	assert.False(t, res.ForcedStop)
	assert.Equal(t, fallbackAnswer, res.Text)

	history, err := f.convRepo.GetChatHistory(context.Background(), "u1", "c1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, fallbackAnswer, history[1].Content)

	_, err = svc.RunTurn(context.Background(), TurnInput{Text: "second"}, defaultOpts)
	require.NoError(t, err)
	for _, content := range client.requests[1].Contents {
		require.NotEmpty(t, content.Parts)
		assert.NotEmpty(t, content.Parts[0].Text)
	}
}

func TestHistorySkipsEmptyMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.convRepo.SaveMessage(ctx, "u1", "c1", model.Message{Role: model.RoleUser, Content: "hello"})
	require.NoError(t, err)
	_, err = f.convRepo.SaveMessage(ctx, "u1", "c1", model.Message{Role: model.RoleAssistant, Content: ""})
	require.NoError(t, err)

	assembler := NewContextAssembler(f.convRepo, f.memoryRepo, "test", 10, 10)
	_, contents := assembler.Build(ctx, TurnInput{Text: "again"}, defaultOpts)
	require.Len(t, contents, 2)
	assert.Equal(t, "hello", contents[0].Parts[0].Text)
	assert.Equal(t, "again", contents[1].Parts[0].Text)
}
