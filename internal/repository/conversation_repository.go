// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"jotium-go/internal/config"
	"jotium-go/internal/model"
	"jotium-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	defaultChatHistoryLimit = 100
	defaultConversationTTL  = 30 * 24 * time.Hour
	defaultMemoryTTL        = 90 * 24 * time.Hour

	defaultTitle   = "New Conversation"
	titleRuneLimit = 50
)

// ConversationRepository 定义了会话消息、会话元数据和会话摘要的操作接口。
type ConversationRepository interface {
	SaveMessage(ctx context.Context, userID, conversationID string, msg model.Message) (*model.Message, error)
	GetChatHistory(ctx context.Context, userID, conversationID string, limit int) ([]model.Message, error)
	GetMessageCount(ctx context.Context, userID, conversationID string) (int64, error)
	GetUserConversations(ctx context.Context, userID string) ([]model.ConversationMeta, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) (bool, error)
	StoreConversationSummary(ctx context.Context, userID, conversationID, summary string, metadata map[string]interface{}) (*model.ConversationSummary, error)
	GetConversationSummary(ctx context.Context, userID, conversationID string) (*model.ConversationSummary, error)
	Ping(ctx context.Context) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	cfg         config.SessionConfig
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client, cfg config.SessionConfig) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, cfg: normalizeSessionConfig(cfg)}
}

func normalizeSessionConfig(cfg config.SessionConfig) config.SessionConfig {
	if cfg.ChatHistoryLimit <= 0 {
		cfg.ChatHistoryLimit = defaultChatHistoryLimit
	}
	if cfg.ConversationTTL <= 0 {
		cfg.ConversationTTL = defaultConversationTTL
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = defaultMemoryTTL
	}
	return cfg
}

func chatKey(userID, conversationID string) string {
	return fmt.Sprintf("chat:%s:%s", userID, conversationID)
}

func userConversationsKey(userID string) string {
	return fmt.Sprintf("user_conversations:%s", userID)
}

func conversationMetaKey(userID, conversationID string) string {
	return fmt.Sprintf("conversation_meta:%s:%s", userID, conversationID)
}

func conversationSummaryKey(userID, conversationID string) string {
	return fmt.Sprintf("conversation_summary:%s:%s", userID, conversationID)
}

// NewMessageID 生成消息 ID。
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// conversationTitle 取用户消息的前 50 个字符作为标题，助手消息不产生标题。
func conversationTitle(msg model.Message) string {
	if msg.Role != model.RoleUser || msg.Content == "" {
		return ""
	}
	if utf8.RuneCountInString(msg.Content) <= titleRuneLimit {
		return msg.Content
	}
	return string([]rune(msg.Content)[:titleRuneLimit]) + "..."
}

// SaveMessage 将消息压入会话列表头部并裁剪到上限，同时刷新会话元数据和用户会话索引。
// 所有写操作在一个 pipeline 中批量发送，但不是跨 key 的事务。
func (r *redisConversationRepository) SaveMessage(ctx context.Context, userID, conversationID string, msg model.Message) (*model.Message, error) {
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.UserID = userID
	msg.ConversationID = conversationID

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	participants, _ := json.Marshal([]string{userID})

	listKey := chatKey(userID, conversationID)
	indexKey := userConversationsKey(userID)
	metaKey := conversationMetaKey(userID, conversationID)
	ttl := r.cfg.ConversationTTL

	var indexSize *redis.IntCmd
	_, err = r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, listKey, data)
		pipe.LTrim(ctx, listKey, 0, int64(r.cfg.ChatHistoryLimit-1))
		pipe.Expire(ctx, listKey, ttl)

		pipe.SAdd(ctx, indexKey, conversationID)
		pipe.Expire(ctx, indexKey, ttl)

		pipe.HSet(ctx, metaKey,
			"lastActivity", msg.Timestamp.UTC().Format(time.RFC3339Nano),
			"participants", string(participants),
		)
		// 原子自增，避免并发写同一会话时的读-改-写竞争
		pipe.HIncrBy(ctx, metaKey, "messageCount", 1)
		if title := conversationTitle(msg); title != "" {
			pipe.HSet(ctx, metaKey, "title", title)
		} else {
			pipe.HSetNX(ctx, metaKey, "title", defaultTitle)
		}
		pipe.Expire(ctx, metaKey, ttl)

		indexSize = pipe.SCard(ctx, indexKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	if limit := r.cfg.MaxConversationsPerUser; limit > 0 && indexSize.Val() > int64(limit) {
		if err := r.evictOldestConversations(ctx, userID, conversationID); err != nil {
			log.Warnf("清理超出上限的会话失败, userID: %s, error: %v", userID, err)
		}
	}
	return &msg, nil
}

// GetChatHistory 返回最近 limit 条消息，按时间正序排列。limit <= 0 时返回全部已存储的消息。
// 无法解析的条目会被跳过。
func (r *redisConversationRepository) GetChatHistory(ctx context.Context, userID, conversationID string, limit int) ([]model.Message, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := r.redisClient.LRange(ctx, chatKey(userID, conversationID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}

	messages := make([]model.Message, 0, len(raw))
	// 列表头部是最新的消息，倒序遍历得到时间正序
	for i := len(raw) - 1; i >= 0; i-- {
		var msg model.Message
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			log.Warnf("跳过无法解析的消息, conversationID: %s, error: %v", conversationID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetMessageCount 返回会话中当前存储的消息条数。
func (r *redisConversationRepository) GetMessageCount(ctx context.Context, userID, conversationID string) (int64, error) {
	n, err := r.redisClient.LLen(ctx, chatKey(userID, conversationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get message count: %w", err)
	}
	return n, nil
}

// GetUserConversations 返回用户的全部会话元数据，按 lastActivity 倒序排列。
func (r *redisConversationRepository) GetUserConversations(ctx context.Context, userID string) ([]model.ConversationMeta, error) {
	metas, _, err := r.loadConversationMetas(ctx, userID)
	return metas, err
}

// loadConversationMetas 读取索引中每个会话的元数据。元数据已过期的会话 ID 通过 stale 返回。
func (r *redisConversationRepository) loadConversationMetas(ctx context.Context, userID string) ([]model.ConversationMeta, []string, error) {
	ids, err := r.redisClient.SMembers(ctx, userConversationsKey(userID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user conversations: %w", err)
	}
	metas := make([]model.ConversationMeta, 0, len(ids))
	if len(ids) == 0 {
		return metas, nil, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, conversationMetaKey(userID, id))
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get conversation metadata: %w", err)
	}

	var stale []string
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		meta, err := parseConversationMeta(ids[i], fields)
		if err != nil {
			log.Warnf("跳过无法解析的会话元数据, conversationID: %s, error: %v", ids[i], err)
			continue
		}
		metas = append(metas, meta)
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].LastActivity.After(metas[j].LastActivity)
	})
	return metas, stale, nil
}

func parseConversationMeta(id string, fields map[string]string) (model.ConversationMeta, error) {
	meta := model.ConversationMeta{ID: id, Title: fields["title"]}
	if v := fields["lastActivity"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return meta, fmt.Errorf("invalid lastActivity: %w", err)
		}
		meta.LastActivity = t
	}
	if v := fields["messageCount"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return meta, fmt.Errorf("invalid messageCount: %w", err)
		}
		meta.MessageCount = n
	}
	if v := fields["participants"]; v != "" {
		if err := json.Unmarshal([]byte(v), &meta.Participants); err != nil {
			return meta, fmt.Errorf("invalid participants: %w", err)
		}
	}
	return meta, nil
}

// DeleteConversation 删除会话的消息列表、元数据和摘要，并从用户索引中移除。
// 返回值表示是否真的删除了数据，会话不存在时返回 false 且不报错。
func (r *redisConversationRepository) DeleteConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	var delCmd, remCmd *redis.IntCmd
	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		delCmd = pipe.Del(ctx,
			chatKey(userID, conversationID),
			conversationMetaKey(userID, conversationID),
			conversationSummaryKey(userID, conversationID),
		)
		remCmd = pipe.SRem(ctx, userConversationsKey(userID), conversationID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return delCmd.Val()+remCmd.Val() > 0, nil
}

// evictOldestConversations 在用户会话数超过上限时删除最久未活动的会话，keep 指定的会话不会被删除。
func (r *redisConversationRepository) evictOldestConversations(ctx context.Context, userID, keep string) error {
	metas, stale, err := r.loadConversationMetas(ctx, userID)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		members := make([]interface{}, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		if err := r.redisClient.SRem(ctx, userConversationsKey(userID), members...).Err(); err != nil {
			return fmt.Errorf("failed to prune stale conversations: %w", err)
		}
	}

	overflow := len(metas) - r.cfg.MaxConversationsPerUser
	// metas 已按 lastActivity 倒序，从尾部开始删除
	for i := len(metas) - 1; i >= 0 && overflow > 0; i-- {
		if metas[i].ID == keep {
			continue
		}
		if _, err := r.DeleteConversation(ctx, userID, metas[i].ID); err != nil {
			return err
		}
		log.Infof("会话数超过上限，已删除最久未活动的会话, userID: %s, conversationID: %s", userID, metas[i].ID)
		overflow--
	}
	return nil
}

// StoreConversationSummary 保存会话摘要，使用记忆的过期时间。
func (r *redisConversationRepository) StoreConversationSummary(ctx context.Context, userID, conversationID, summary string, metadata map[string]interface{}) (*model.ConversationSummary, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	s := &model.ConversationSummary{
		ConversationID: conversationID,
		UserID:         userID,
		Summary:        summary,
		Timestamp:      time.Now().UTC(),
		Metadata:       metadata,
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation summary: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationSummaryKey(userID, conversationID), data, r.cfg.MemoryTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store conversation summary: %w", err)
	}
	return s, nil
}

// GetConversationSummary 读取会话摘要，不存在时返回 nil。
func (r *redisConversationRepository) GetConversationSummary(ctx context.Context, userID, conversationID string) (*model.ConversationSummary, error) {
	data, err := r.redisClient.Get(ctx, conversationSummaryKey(userID, conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation summary: %w", err)
	}
	var s model.ConversationSummary
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation summary: %w", err)
	}
	return &s, nil
}

// Ping 检查 Redis 连接是否可用。
func (r *redisConversationRepository) Ping(ctx context.Context) error {
	return r.redisClient.Ping(ctx).Err()
}
