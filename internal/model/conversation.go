// Package model 包含了应用的数据模型定义。
package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 代表存储在 Redis 会话列表中的单条消息，写入后不再修改。
type Message struct {
	ID             string           `json:"id"`
	Role           string           `json:"role"` // "user" 或 "assistant"
	Content        string           `json:"content"`
	Timestamp      time.Time        `json:"timestamp"`
	UserID         string           `json:"userId"`
	ConversationID string           `json:"conversationId"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata 附加在消息上的元数据，助手消息会携带工具调用和思考过程。
type MessageMetadata struct {
	ToolCalls   []ToolCallRecord `json:"toolCalls,omitempty"`
	Thoughts    string           `json:"thoughts,omitempty"`
	StopReason  string           `json:"stopReason,omitempty"`
	Attachments []Attachment     `json:"attachments,omitempty"`
}

// ToolCallRecord 记录一次工具调用。
type ToolCallRecord struct {
	Name      string                 `json:"name"`
	Args      map[string]interface{} `json:"args"`
	Timestamp time.Time              `json:"timestamp"`
}

// Attachment 描述随用户消息上传的图片。
type Attachment struct {
	ObjectKey string `json:"objectKey,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	MIMEType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	// URL 是读取历史时生成的临时下载链接，不会写入存储
	URL string `json:"url,omitempty"`
}

// ConversationMeta 是从会话元数据哈希中读出的会话概要。
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int64     `json:"messageCount"`
	Participants []string  `json:"participants"`
}

// ConversationSummary 是一个会话的摘要，生命周期独立于原始消息。
type ConversationSummary struct {
	ConversationID string                 `json:"conversationId"`
	UserID         string                 `json:"userId"`
	Summary        string                 `json:"summary"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// CleanupResult 是一次用户数据清理的结果。
type CleanupResult struct {
	DeletedConversations   int `json:"deletedConversations"`
	RemainingConversations int `json:"remainingConversations"`
}

// UserStats 汇总了一个用户的会话与记忆数量。
type UserStats struct {
	TotalConversations  int                `json:"totalConversations"`
	TotalMessages       int64              `json:"totalMessages"`
	TotalMemories       int                `json:"totalMemories"`
	LastActivity        *time.Time         `json:"lastActivity"`
	RecentConversations []ConversationMeta `json:"conversations"`
}

// TurnRecord 代表一次完成的对话轮次，归档在 MySQL 中供管理员查询。
type TurnRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"type:varchar(128);index;not null" json:"userId"`
	ConversationID string    `gorm:"type:varchar(128);index;not null" json:"conversationId"`
	Question       string    `gorm:"type:text;not null" json:"question"`
	Answer         string    `gorm:"type:text;not null" json:"answer"`
	ToolCallCount  int       `json:"toolCallCount"`
	Iterations     int       `json:"iterations"`
	StopReason     string    `gorm:"type:varchar(32)" json:"stopReason"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (TurnRecord) TableName() string {
	return "turn_records"
}
