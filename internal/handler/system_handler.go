package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jotium-go/internal/config"
	"jotium-go/internal/service"
	"jotium-go/pkg/log"
)

// AgentInfo 描述当前运行的智能体。
type AgentInfo struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Model          string   `json:"model"`
	Capabilities   []string `json:"capabilities"`
	Tools          []string `json:"tools"`
	MemoryFeatures []string `json:"memoryFeatures"`
}

// SystemHandler 处理健康检查和智能体信息请求。
type SystemHandler struct {
	conversationService service.ConversationService
	info                AgentInfo
}

// NewSystemHandler 创建一个新的 SystemHandler。
func NewSystemHandler(conversationService service.ConversationService, agentCfg config.AgentConfig, model string, toolNames []string) *SystemHandler {
	return &SystemHandler{
		conversationService: conversationService,
		info: AgentInfo{
			Name:    agentCfg.Name,
			Version: agentCfg.Version,
			Model:   model,
			Capabilities: []string{
				"text_generation",
				"image_analysis",
				"function_calling",
				"thinking",
				"streaming",
				"memory",
			},
			Tools: toolNames,
			MemoryFeatures: []string{
				"conversation_history",
				"user_memory",
				"conversation_summaries",
				"memory_search",
			},
		},
	}
}

// Health 处理 GET /health，同时检查 Redis 连接。
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	connected := true
	if err := h.conversationService.Ping(ctx); err != nil {
		log.Warnf("健康检查 Redis 连接失败: %v", err)
		connected = false
	}
	memoryStatus := "operational"
	if !connected {
		memoryStatus = "disconnected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"agent":     h.info,
		"memory": gin.H{
			"connected": connected,
			"status":    memoryStatus,
		},
	})
}

// AgentInfo 处理 GET /api/v1/agent/info。
func (h *SystemHandler) AgentInfo(c *gin.Context) {
	respondOK(c, h.info)
}
