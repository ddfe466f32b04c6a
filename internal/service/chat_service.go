// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jotium-go/internal/config"
	"jotium-go/internal/model"
	"jotium-go/internal/repository"
	"jotium-go/internal/tools"
	"jotium-go/pkg/llm"
	"jotium-go/pkg/log"
)

// 一轮对话的结束原因。
const (
	StopCompleted     = "completed"
	StopMaxIterations = "max_iterations"
	StopTimeout       = "timeout"
	// StopEmptyResponse 表示模型没有返回任何回答文本，例如候选结果被安全策略拦截。
	StopEmptyResponse = "empty_response"
)

const fallbackAnswer = "I apologize, but I wasn't able to complete that request. Please try again."

// ImageInput 是随本轮消息一起发送给模型的图片。
type ImageInput struct {
	MIMEType  string
	Data      []byte
	ObjectKey string // 归档到对象存储后的 key，未归档时为空
	FileName  string
}

// TurnInput 是一轮对话的用户输入，Text 和 Images 至少提供一个。
type TurnInput struct {
	Text   string
	Images []ImageInput
}

// TurnOptions 控制一轮对话的上下文和持久化。
type TurnOptions struct {
	UserID         string
	ConversationID string
	IncludeHistory bool
	HistoryLimit   int
	Temperature    *float64
}

// TurnResult 是一轮对话的最终结果。
type TurnResult struct {
	Text       string                 `json:"text"`
	Thoughts   string                 `json:"thoughts,omitempty"`
	ToolCalls  []model.ToolCallRecord `json:"toolCalls"`
	Timestamp  time.Time              `json:"timestamp"`
	Iterations int                    `json:"iterations"`
	StopReason string                 `json:"stopReason"`
	ForcedStop bool                   `json:"forcedStop"`
}

// ChatService 定义了对话编排的接口。
type ChatService interface {
	// RunTurn 执行一轮对话：反复调用模型并执行其请求的工具，直到模型给出最终回答。
	RunTurn(ctx context.Context, in TurnInput, opts TurnOptions) (*TurnResult, error)
}

type chatService struct {
	llmClient        llm.Client
	registry         *tools.Registry
	assembler        *ContextAssembler
	conversationRepo repository.ConversationRepository
	turnRepo         repository.TurnRepository
	cfg              config.AgentConfig
}

// NewChatService 创建一个新的 ChatService 实例。turnRepo 为 nil 时不归档对话轮次。
func NewChatService(llmClient llm.Client, registry *tools.Registry, assembler *ContextAssembler, conversationRepo repository.ConversationRepository, turnRepo repository.TurnRepository, cfg config.AgentConfig) ChatService {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	return &chatService{
		llmClient:        llmClient,
		registry:         registry,
		assembler:        assembler,
		conversationRepo: conversationRepo,
		turnRepo:         turnRepo,
		cfg:              cfg,
	}
}

// RunTurn 协调模型与工具之间的循环，并在结束后保存本轮对话。
func (s *chatService) RunTurn(ctx context.Context, in TurnInput, opts TurnOptions) (*TurnResult, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Images) == 0 {
		return nil, fmt.Errorf("agent error: %w: message text or image is required", ErrInvalidInput)
	}

	startedAt := time.Now().UTC()
	turnCtx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()
	toolCtx := turnCtx
	if opts.UserID != "" {
		toolCtx = tools.WithUserID(turnCtx, opts.UserID)
	}

	instruction, contents := s.assembler.Build(turnCtx, in, opts)
	req := &llm.Request{
		SystemInstruction: instruction,
		Contents:          contents,
		Tools:             s.registry.Declarations(),
		IncludeThoughts:   true,
	}
	if opts.Temperature != nil {
		req.Generation = &llm.GenerationParams{Temperature: opts.Temperature}
	}

	var (
		answer     strings.Builder
		thoughts   []string
		records    []model.ToolCallRecord
		iterations int
		stopReason string
	)

	for stopReason == "" {
		if err := turnCtx.Err(); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("agent error: %w", ctx.Err())
			}
			stopReason = StopTimeout
			break
		}
		if iterations >= s.cfg.MaxIterations {
			stopReason = StopMaxIterations
			break
		}
		iterations++

		start := time.Now()
		resp, err := s.llmClient.Generate(turnCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("agent error: %w", ctx.Err())
			}
			if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
				stopReason = StopTimeout
				break
			}
			log.Errorf("[Agent] 模型调用失败, iteration: %d, error: %v", iterations, err)
			return nil, fmt.Errorf("agent error: %w: %w", ErrModel, err)
		}

		respThoughts, respText := resp.TextParts()
		thoughts = append(thoughts, respThoughts...)
		for _, t := range respText {
			answer.WriteString(t)
		}

		calls := resp.ToolCalls()
		log.Infof("[Agent] 模型调用完成, model: %s, iteration: %d, toolCalls: %d, finishReason: %s, 耗时: %v",
			s.llmClient.Model(), iterations, len(calls), resp.FinishReason, time.Since(start))
		if len(calls) == 0 {
			stopReason = StopCompleted
			if strings.TrimSpace(answer.String()) == "" {
				stopReason = StopEmptyResponse
			}
			break
		}

		// 先确认所有工具都已注册，再执行任何一个
		for _, call := range calls {
			if _, ok := s.registry.Lookup(call.Name); !ok {
				log.Warnf("[Agent] 模型请求了未注册的工具: %s", call.Name)
				return nil, fmt.Errorf("agent error: %w", &tools.NotFoundError{Name: call.Name})
			}
		}

		req.Contents = append(req.Contents, resp.Content)
		results := make([]llm.Part, 0, len(calls))
		for _, call := range calls {
			records = append(records, model.ToolCallRecord{Name: call.Name, Args: call.Args, Timestamp: time.Now().UTC()})
			results = append(results, llm.Part{ToolResult: &llm.ToolResult{
				ID:       call.ID,
				Name:     call.Name,
				Response: s.invokeTool(toolCtx, call),
			}})
		}
		req.Contents = append(req.Contents, llm.Content{Role: llm.RoleUser, Parts: results})
	}

	result := &TurnResult{
		Text:       strings.TrimSpace(answer.String()),
		Thoughts:   strings.TrimSpace(strings.Join(thoughts, "\n")),
		ToolCalls:  records,
		Timestamp:  time.Now().UTC(),
		Iterations: iterations,
		StopReason: stopReason,
		ForcedStop: stopReason == StopMaxIterations || stopReason == StopTimeout,
	}
	if result.ToolCalls == nil {
		result.ToolCalls = []model.ToolCallRecord{}
	}
	if stopReason != StopCompleted {
		log.Warnf("[Agent] 对话未正常结束, reason: %s, iterations: %d", stopReason, iterations)
	}
	// 历史中的助手消息必须有内容
	if result.Text == "" {
		result.Text = fallbackAnswer
	}

	s.persistTurn(in, opts, result, startedAt)
	return result, nil
}

// invokeTool 执行一次工具调用。工具返回的错误作为结果交还给模型，不会中断本轮对话。
func (s *chatService) invokeTool(ctx context.Context, call llm.ToolCall) map[string]interface{} {
	start := time.Now()
	out, err := s.registry.Invoke(ctx, call.Name, call.Args)
	if err != nil {
		log.Warnf("[Agent] 工具执行失败, tool: %s, 耗时: %v, error: %v", call.Name, time.Since(start), err)
		return map[string]interface{}{"error": err.Error()}
	}
	log.Infof("[Agent] 工具执行完成, tool: %s, 耗时: %v", call.Name, time.Since(start))
	if m, ok := out.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"result": out}
}

// persistTurn 保存本轮的用户消息和助手消息。使用独立的后台上下文，
// 调用方取消请求后已生成的回答仍然会被保存；失败只记录日志。
func (s *chatService) persistTurn(in TurnInput, opts TurnOptions, result *TurnResult, startedAt time.Time) {
	if opts.UserID == "" || opts.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()

	if text := strings.TrimSpace(in.Text); text != "" {
		userMsg := model.Message{Role: model.RoleUser, Content: text, Timestamp: startedAt}
		if len(in.Images) > 0 {
			userMsg.Metadata = &model.MessageMetadata{Attachments: attachmentsOf(in.Images)}
		}
		if _, err := s.conversationRepo.SaveMessage(ctx, opts.UserID, opts.ConversationID, userMsg); err != nil {
			log.Errorf("[Agent] 保存用户消息失败, userID: %s, conversationID: %s, error: %v", opts.UserID, opts.ConversationID, err)
			return
		}
	}

	assistantMsg := model.Message{
		Role:      model.RoleAssistant,
		Content:   result.Text,
		Timestamp: result.Timestamp,
		Metadata: &model.MessageMetadata{
			ToolCalls:  result.ToolCalls,
			Thoughts:   result.Thoughts,
			StopReason: result.StopReason,
		},
	}
	if _, err := s.conversationRepo.SaveMessage(ctx, opts.UserID, opts.ConversationID, assistantMsg); err != nil {
		log.Errorf("[Agent] 保存助手消息失败, userID: %s, conversationID: %s, error: %v", opts.UserID, opts.ConversationID, err)
		return
	}

	if s.turnRepo == nil {
		return
	}
	record := &model.TurnRecord{
		UserID:         opts.UserID,
		ConversationID: opts.ConversationID,
		Question:       in.Text,
		Answer:         result.Text,
		ToolCallCount:  len(result.ToolCalls),
		Iterations:     result.Iterations,
		StopReason:     result.StopReason,
	}
	if err := s.turnRepo.Create(ctx, record); err != nil {
		log.Errorf("[Agent] 归档对话轮次失败, userID: %s, error: %v", opts.UserID, err)
	}
}

func attachmentsOf(images []ImageInput) []model.Attachment {
	out := make([]model.Attachment, 0, len(images))
	for _, img := range images {
		out = append(out, model.Attachment{
			ObjectKey: img.ObjectKey,
			FileName:  img.FileName,
			MIMEType:  img.MIMEType,
			Size:      int64(len(img.Data)),
		})
	}
	return out
}
