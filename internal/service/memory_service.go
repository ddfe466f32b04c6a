package service

import (
	"context"
	"fmt"
	"strings"

	"jotium-go/internal/model"
	"jotium-go/internal/repository"
)

// MemoryService 定义了用户长期记忆的业务逻辑接口。
type MemoryService interface {
	Store(ctx context.Context, userID, key string, value interface{}, metadata map[string]interface{}) (*model.MemoryEntry, error)
	Get(ctx context.Context, userID, key string) (*model.MemoryEntry, error)
	GetAll(ctx context.Context, userID string) (map[string]model.MemoryEntry, error)
	Search(ctx context.Context, userID, query string) ([]model.MemoryEntry, error)
	Delete(ctx context.Context, userID, key string) (bool, error)
}

type memoryService struct {
	repo repository.MemoryRepository
}

// NewMemoryService 创建一个新的 MemoryService。
func NewMemoryService(repo repository.MemoryRepository) MemoryService {
	return &memoryService{repo: repo}
}

func (s *memoryService) Store(ctx context.Context, userID, key string, value interface{}, metadata map[string]interface{}) (*model.MemoryEntry, error) {
	if strings.TrimSpace(key) == "" || value == nil {
		return nil, fmt.Errorf("%w: key and value are required", ErrInvalidInput)
	}
	return s.repo.StoreMemory(ctx, userID, key, value, metadata)
}

func (s *memoryService) Get(ctx context.Context, userID, key string) (*model.MemoryEntry, error) {
	return s.repo.GetMemory(ctx, userID, key)
}

func (s *memoryService) GetAll(ctx context.Context, userID string) (map[string]model.MemoryEntry, error) {
	return s.repo.GetAllMemories(ctx, userID)
}

func (s *memoryService) Search(ctx context.Context, userID, query string) ([]model.MemoryEntry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	return s.repo.SearchMemories(ctx, userID, query)
}

func (s *memoryService) Delete(ctx context.Context, userID, key string) (bool, error) {
	return s.repo.DeleteMemory(ctx, userID, key)
}
