package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"jotium-go/internal/config"
	"jotium-go/internal/model"
	"jotium-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// MemoryRepository 定义了用户长期记忆的操作接口。每个用户的记忆存放在一个 Redis 哈希中。
type MemoryRepository interface {
	StoreMemory(ctx context.Context, userID, key string, value interface{}, metadata map[string]interface{}) (*model.MemoryEntry, error)
	GetMemory(ctx context.Context, userID, key string) (*model.MemoryEntry, error)
	GetAllMemories(ctx context.Context, userID string) (map[string]model.MemoryEntry, error)
	SearchMemories(ctx context.Context, userID, query string) ([]model.MemoryEntry, error)
	DeleteMemory(ctx context.Context, userID, key string) (bool, error)
}

type redisMemoryRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewMemoryRepository 创建一个新的 MemoryRepository 实例。
func NewMemoryRepository(redisClient *redis.Client, cfg config.SessionConfig) MemoryRepository {
	return &redisMemoryRepository{redisClient: redisClient, ttl: normalizeSessionConfig(cfg).MemoryTTL}
}

func userMemoryKey(userID string) string {
	return fmt.Sprintf("user_memory:%s", userID)
}

// StoreMemory 写入一条记忆并刷新整个记忆哈希的过期时间。
func (r *redisMemoryRepository) StoreMemory(ctx context.Context, userID, key string, value interface{}, metadata map[string]interface{}) (*model.MemoryEntry, error) {
	entry := model.NewMemoryEntry(key, value, metadata, time.Now().UTC())
	data, err := entry.Encode()
	if err != nil {
		return nil, err
	}
	memKey := userMemoryKey(userID)
	_, err = r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, memKey, key, data)
		pipe.Expire(ctx, memKey, r.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}
	return &entry, nil
}

// GetMemory 读取一条记忆，不存在时返回 nil。
func (r *redisMemoryRepository) GetMemory(ctx context.Context, userID, key string) (*model.MemoryEntry, error) {
	data, err := r.redisClient.HGet(ctx, userMemoryKey(userID), key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	entry, err := model.DecodeMemoryEntry([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode memory %q: %w", key, err)
	}
	return &entry, nil
}

// GetAllMemories 返回用户的全部记忆，无法解析的条目会被跳过。
func (r *redisMemoryRepository) GetAllMemories(ctx context.Context, userID string) (map[string]model.MemoryEntry, error) {
	fields, err := r.redisClient.HGetAll(ctx, userMemoryKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get memories: %w", err)
	}
	memories := make(map[string]model.MemoryEntry, len(fields))
	for key, data := range fields {
		entry, err := model.DecodeMemoryEntry([]byte(data))
		if err != nil {
			log.Warnf("跳过无法解析的记忆, userID: %s, key: %s, error: %v", userID, key, err)
			continue
		}
		memories[key] = entry
	}
	return memories, nil
}

// SearchMemories 对用户的全部记忆做线性扫描，key、值或元数据包含查询词（不区分大小写）即命中。
// 结果按时间倒序排列。
func (r *redisMemoryRepository) SearchMemories(ctx context.Context, userID, query string) ([]model.MemoryEntry, error) {
	memories, err := r.GetAllMemories(ctx, userID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	results := make([]model.MemoryEntry, 0)
	for _, entry := range memories {
		if memoryMatches(entry, q) {
			results = append(results, entry)
		}
	}
	SortMemoriesByRecency(results)
	return results, nil
}

func memoryMatches(entry model.MemoryEntry, q string) bool {
	if strings.Contains(strings.ToLower(entry.Key), q) {
		return true
	}
	if strings.Contains(strings.ToLower(entry.ValueString()), q) {
		return true
	}
	if len(entry.Metadata) > 0 {
		if meta, err := json.Marshal(entry.Metadata); err == nil && strings.Contains(strings.ToLower(string(meta)), q) {
			return true
		}
	}
	return false
}

// SortMemoriesByRecency 按时间倒序排列记忆，时间相同时按 key 排序保证结果稳定。
func SortMemoriesByRecency(entries []model.MemoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Key < entries[j].Key
	})
}

// DeleteMemory 删除一条记忆。
func (r *redisMemoryRepository) DeleteMemory(ctx context.Context, userID, key string) (bool, error) {
	n, err := r.redisClient.HDel(ctx, userMemoryKey(userID), key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}
	return n > 0, nil
}
