package service

import (
	"context"
	"fmt"
	"time"

	"jotium-go/internal/model"
	"jotium-go/internal/repository"
	"jotium-go/pkg/log"
)

const recentConversationsInStats = 10

// ConversationService 定义了会话管理相关的业务逻辑接口。
type ConversationService interface {
	GetChatHistory(ctx context.Context, userID, conversationID string, limit int) ([]model.Message, error)
	GetMessageCount(ctx context.Context, userID, conversationID string) (int64, error)
	ListConversations(ctx context.Context, userID string) ([]model.ConversationMeta, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) (bool, error)
	StoreSummary(ctx context.Context, userID, conversationID, summary string, metadata map[string]interface{}) (*model.ConversationSummary, error)
	GetSummary(ctx context.Context, userID, conversationID string) (*model.ConversationSummary, error)
	CleanupUserData(ctx context.Context, userID string) (*model.CleanupResult, error)
	GetUserStats(ctx context.Context, userID string) (*model.UserStats, error)
	Ping(ctx context.Context) error
}

type conversationService struct {
	repo       repository.ConversationRepository
	memoryRepo repository.MemoryRepository
	retention  time.Duration
	now        func() time.Time
}

// NewConversationService 创建一个新的 ConversationService。retention 是 CleanupUserData 保留会话的时长。
func NewConversationService(repo repository.ConversationRepository, memoryRepo repository.MemoryRepository, retention time.Duration) ConversationService {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &conversationService{repo: repo, memoryRepo: memoryRepo, retention: retention, now: time.Now}
}

func (s *conversationService) GetChatHistory(ctx context.Context, userID, conversationID string, limit int) ([]model.Message, error) {
	if userID == "" || conversationID == "" {
		return nil, fmt.Errorf("%w: userId and conversationId are required", ErrInvalidInput)
	}
	return s.repo.GetChatHistory(ctx, userID, conversationID, limit)
}

func (s *conversationService) GetMessageCount(ctx context.Context, userID, conversationID string) (int64, error) {
	if userID == "" || conversationID == "" {
		return 0, fmt.Errorf("%w: userId and conversationId are required", ErrInvalidInput)
	}
	return s.repo.GetMessageCount(ctx, userID, conversationID)
}

func (s *conversationService) ListConversations(ctx context.Context, userID string) ([]model.ConversationMeta, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.repo.GetUserConversations(ctx, userID)
}

func (s *conversationService) DeleteConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	if userID == "" || conversationID == "" {
		return false, fmt.Errorf("%w: userId and conversationId are required", ErrInvalidInput)
	}
	return s.repo.DeleteConversation(ctx, userID, conversationID)
}

func (s *conversationService) StoreSummary(ctx context.Context, userID, conversationID, summary string, metadata map[string]interface{}) (*model.ConversationSummary, error) {
	if summary == "" {
		return nil, fmt.Errorf("%w: summary is required", ErrInvalidInput)
	}
	return s.repo.StoreConversationSummary(ctx, userID, conversationID, summary, metadata)
}

func (s *conversationService) GetSummary(ctx context.Context, userID, conversationID string) (*model.ConversationSummary, error) {
	return s.repo.GetConversationSummary(ctx, userID, conversationID)
}

// CleanupUserData 删除最后活动时间早于保留期的会话。
func (s *conversationService) CleanupUserData(ctx context.Context, userID string) (*model.CleanupResult, error) {
	metas, err := s.repo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-s.retention)
	result := &model.CleanupResult{}
	for _, meta := range metas {
		if !meta.LastActivity.Before(cutoff) {
			result.RemainingConversations++
			continue
		}
		if _, err := s.repo.DeleteConversation(ctx, userID, meta.ID); err != nil {
			return nil, err
		}
		result.DeletedConversations++
	}
	log.Infof("用户数据清理完成, userID: %s, deleted: %d, remaining: %d", userID, result.DeletedConversations, result.RemainingConversations)
	return result, nil
}

// GetUserStats 汇总用户的会话数、消息数、记忆数以及最近的会话。
func (s *conversationService) GetUserStats(ctx context.Context, userID string) (*model.UserStats, error) {
	metas, err := s.repo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &model.UserStats{TotalConversations: len(metas)}
	for _, meta := range metas {
		stats.TotalMessages += meta.MessageCount
	}
	if len(metas) > 0 {
		last := metas[0].LastActivity
		stats.LastActivity = &last
	}
	recent := metas
	if len(recent) > recentConversationsInStats {
		recent = recent[:recentConversationsInStats]
	}
	stats.RecentConversations = recent

	if s.memoryRepo != nil {
		memories, err := s.memoryRepo.GetAllMemories(ctx, userID)
		if err != nil {
			log.Warnf("统计用户记忆失败, userID: %s, error: %v", userID, err)
		} else {
			stats.TotalMemories = len(memories)
		}
	}
	return stats, nil
}

func (s *conversationService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
