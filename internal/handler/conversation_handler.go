package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jotium-go/internal/model"
	"jotium-go/internal/service"
	"jotium-go/pkg/log"
	"jotium-go/pkg/storage"
)

const (
	defaultHistoryPageSize = 50
	attachmentURLExpiry    = time.Hour
)

// ConversationHandler 处理会话管理相关的 API 请求。
type ConversationHandler struct {
	service     service.ConversationService
	attachments storage.AttachmentStore
}

// NewConversationHandler 创建一个新的 ConversationHandler。attachments 为 nil 时历史中的附件不附带下载链接。
func NewConversationHandler(service service.ConversationService, attachments storage.AttachmentStore) *ConversationHandler {
	return &ConversationHandler{service: service, attachments: attachments}
}

// ListConversations 返回用户的会话列表，按最后活动时间倒序。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	metas, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, metas)
}

// GetHistory 返回一个会话最近的消息以及当前存储的消息总数，limit 默认为 50，小于等于 0 时返回全部。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	ctx := c.Request.Context()
	conversationID := c.Param("conversationId")
	history, err := h.service.GetChatHistory(ctx, userID, conversationID, queryInt(c, "limit", defaultHistoryPageSize))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	total, err := h.service.GetMessageCount(ctx, userID, conversationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.signAttachments(ctx, history)
	respondOK(c, gin.H{
		"messages": history,
		"total":    total,
	})
}

// signAttachments 为已归档的附件生成临时下载链接，失败时只记录日志。
func (h *ConversationHandler) signAttachments(ctx context.Context, history []model.Message) {
	if h.attachments == nil {
		return
	}
	for i := range history {
		meta := history[i].Metadata
		if meta == nil {
			continue
		}
		for j := range meta.Attachments {
			key := meta.Attachments[j].ObjectKey
			if key == "" {
				continue
			}
			url, err := h.attachments.PresignedURL(ctx, key, attachmentURLExpiry)
			if err != nil {
				log.Warnf("生成附件下载链接失败, key: %s, error: %v", key, err)
				continue
			}
			meta.Attachments[j].URL = url
		}
	}
}

// DeleteConversation 删除一个会话，会话不存在时返回 404。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	existed, err := h.service.DeleteConversation(c.Request.Context(), userID, c.Param("conversationId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !existed {
		respondError(c, http.StatusNotFound, "Conversation not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Conversation deleted successfully", "data": nil})
}

type summaryRequest struct {
	Summary  string                 `json:"summary" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// StoreSummary 保存会话摘要。
func (h *ConversationHandler) StoreSummary(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "summary is required")
		return
	}
	summary, err := h.service.StoreSummary(c.Request.Context(), userID, c.Param("conversationId"), req.Summary, req.Metadata)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, summary)
}

// GetSummary 读取会话摘要，不存在时 data 为 null。
func (h *ConversationHandler) GetSummary(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	summary, err := h.service.GetSummary(c.Request.Context(), userID, c.Param("conversationId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, summary)
}

// GetStats 返回用户的统计信息。
func (h *ConversationHandler) GetStats(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	stats, err := h.service.GetUserStats(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, stats)
}

// Cleanup 同步删除用户超过保留期的会话。
func (h *ConversationHandler) Cleanup(c *gin.Context) {
	userID := c.Param("userId")
	if !authorizeUser(c, userID) {
		return
	}
	result, err := h.service.CleanupUserData(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, result)
}
