// Package pipeline 定义了后台任务的处理流程。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"jotium-go/internal/service"
	"jotium-go/pkg/log"
	"jotium-go/pkg/tasks"
)

// CleanupProcessor 处理从 Kafka 收到的用户数据清理任务。
type CleanupProcessor struct {
	conversationService service.ConversationService
	timeout             time.Duration
}

// NewCleanupProcessor 创建一个新的 CleanupProcessor 实例。
func NewCleanupProcessor(conversationService service.ConversationService, timeout time.Duration) *CleanupProcessor {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &CleanupProcessor{conversationService: conversationService, timeout: timeout}
}

// Process 删除用户超过保留期的会话。
func (p *CleanupProcessor) Process(ctx context.Context, task tasks.CleanupTask) error {
	log.Infof("[Processor] 开始清理用户数据, taskID: %s, userID: %s, requestedBy: %s", task.TaskID, task.UserID, task.RequestedBy)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	result, err := p.conversationService.CleanupUserData(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("cleanup user %s: %w", task.UserID, err)
	}

	log.Infof("[Processor] 用户数据清理完成, taskID: %s, deleted: %d, remaining: %d, 耗时: %v",
		task.TaskID, result.DeletedConversations, result.RemainingConversations, time.Since(start))
	return nil
}
