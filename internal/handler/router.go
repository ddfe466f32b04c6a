package handler

import (
	"github.com/gin-gonic/gin"

	"jotium-go/internal/middleware"
	"jotium-go/pkg/token"
)

// Handlers 汇总了注册路由所需的全部控制器。
type Handlers struct {
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Memory       *MemoryHandler
	System       *SystemHandler
	Admin        *AdminHandler
	// JWTManager 为 nil 时不启用认证，所有接口匿名可用，管理员接口也不注册。
	JWTManager *token.JWTManager
}

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(h Handlers) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", h.System.Health)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/agent/info", h.System.AgentInfo)

		// 对话允许匿名访问，携带 token 时以 token 中的用户为准
		chat := apiV1.Group("/chat")
		if h.JWTManager != nil {
			chat.Use(middleware.AuthMiddleware(h.JWTManager, false))
		}
		{
			chat.POST("", h.Chat.Chat)
			chat.GET("/ws", h.Chat.HandleWebsocket)
		}

		// 启用认证后，按用户读写数据必须携带 token
		memory := apiV1.Group("/memory")
		if h.JWTManager != nil {
			memory.Use(middleware.AuthMiddleware(h.JWTManager, true))
		}
		{
			memory.GET("/conversations/:userId", h.Conversation.ListConversations)
			memory.GET("/conversations/:userId/:conversationId", h.Conversation.GetHistory)
			memory.DELETE("/conversations/:userId/:conversationId", h.Conversation.DeleteConversation)
			memory.GET("/conversations/:userId/:conversationId/summary", h.Conversation.GetSummary)
			memory.PUT("/conversations/:userId/:conversationId/summary", h.Conversation.StoreSummary)
			memory.GET("/stats/:userId", h.Conversation.GetStats)
			memory.POST("/cleanup/:userId", h.Conversation.Cleanup)

			memory.POST("/store/:userId", h.Memory.Store)
			memory.DELETE("/store/:userId/:key", h.Memory.Delete)
			memory.GET("/get/:userId/:key", h.Memory.Get)
			memory.GET("/all/:userId", h.Memory.GetAll)
			memory.GET("/search/:userId", h.Memory.Search)
		}
	}

	if h.JWTManager != nil && h.Admin != nil {
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := r.Group("/api/v1/admin")
		admin.Use(middleware.AuthMiddleware(h.JWTManager, true), middleware.AdminAuthMiddleware())
		{
			admin.GET("/turns", h.Admin.ListTurns)
			admin.POST("/cleanup/:userId", h.Admin.EnqueueCleanup)
		}
	}
	return r
}
