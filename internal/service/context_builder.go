package service

import (
	"context"
	"strings"

	"jotium-go/internal/model"
	"jotium-go/internal/repository"
	"jotium-go/pkg/llm"
	"jotium-go/pkg/log"
)

const memoryHeading = "Known facts about the user (from long-term memory):"

// ContextAssembler 负责为一轮对话准备模型输入：历史消息、本轮输入以及附带用户记忆的系统提示词。
type ContextAssembler struct {
	conversationRepo    repository.ConversationRepository
	memoryRepo          repository.MemoryRepository
	systemInstruction   string
	defaultHistoryLimit int
	memoryLimit         int
}

// NewContextAssembler 创建 ContextAssembler。memoryRepo 为 nil 时不注入记忆。
func NewContextAssembler(conversationRepo repository.ConversationRepository, memoryRepo repository.MemoryRepository, systemInstruction string, defaultHistoryLimit, memoryLimit int) *ContextAssembler {
	if defaultHistoryLimit <= 0 {
		defaultHistoryLimit = 10
	}
	if memoryLimit <= 0 {
		memoryLimit = 10
	}
	return &ContextAssembler{
		conversationRepo:    conversationRepo,
		memoryRepo:          memoryRepo,
		systemInstruction:   systemInstruction,
		defaultHistoryLimit: defaultHistoryLimit,
		memoryLimit:         memoryLimit,
	}
}

// Build 返回本次调用使用的系统提示词和按时间顺序排列的对话内容，最后一项是本轮用户输入。
// 读取失败只记录警告，对话照常进行。
func (a *ContextAssembler) Build(ctx context.Context, in TurnInput, opts TurnOptions) (string, []llm.Content) {
	var contents []llm.Content
	if opts.IncludeHistory && opts.UserID != "" && opts.ConversationID != "" {
		contents = append(contents, a.loadHistory(ctx, opts)...)
	}
	contents = append(contents, userContent(in))

	instruction := a.systemInstruction
	if opts.UserID != "" && a.memoryRepo != nil {
		if block := a.memoryBlock(ctx, opts.UserID); block != "" {
			instruction = instruction + "\n\n" + block
		}
	}
	return instruction, contents
}

func (a *ContextAssembler) loadHistory(ctx context.Context, opts TurnOptions) []llm.Content {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = a.defaultHistoryLimit
	}
	history, err := a.conversationRepo.GetChatHistory(ctx, opts.UserID, opts.ConversationID, limit)
	if err != nil {
		log.Warnf("[Context] 读取历史消息失败, userID: %s, conversationID: %s, error: %v", opts.UserID, opts.ConversationID, err)
		return nil
	}
	contents := make([]llm.Content, 0, len(history))
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := llm.RoleUser
		if msg.Role == model.RoleAssistant {
			role = llm.RoleModel
		}
		contents = append(contents, llm.Content{Role: role, Parts: []llm.Part{{Text: msg.Content}}})
	}
	return contents
}

func (a *ContextAssembler) memoryBlock(ctx context.Context, userID string) string {
	memories, err := a.memoryRepo.GetAllMemories(ctx, userID)
	if err != nil {
		log.Warnf("[Context] 读取用户记忆失败, userID: %s, error: %v", userID, err)
		return ""
	}
	if len(memories) == 0 {
		return ""
	}
	entries := make([]model.MemoryEntry, 0, len(memories))
	for _, e := range memories {
		entries = append(entries, e)
	}
	repository.SortMemoriesByRecency(entries)
	if len(entries) > a.memoryLimit {
		entries = entries[:a.memoryLimit]
	}

	var b strings.Builder
	b.WriteString(memoryHeading)
	for _, e := range entries {
		b.WriteString("\n- ")
		b.WriteString(e.Key)
		b.WriteString(": ")
		b.WriteString(e.ValueString())
	}
	return b.String()
}

func userContent(in TurnInput) llm.Content {
	parts := make([]llm.Part, 0, 1+len(in.Images))
	if text := strings.TrimSpace(in.Text); text != "" {
		parts = append(parts, llm.Part{Text: text})
	}
	for _, img := range in.Images {
		parts = append(parts, llm.Part{InlineData: &llm.Blob{MIMEType: img.MIMEType, Data: img.Data}})
	}
	return llm.Content{Role: llm.RoleUser, Parts: parts}
}
