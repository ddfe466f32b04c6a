// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"jotium-go/internal/config"
	"jotium-go/internal/handler"
	"jotium-go/internal/pipeline"
	"jotium-go/internal/repository"
	"jotium-go/internal/service"
	"jotium-go/internal/tools"
	"jotium-go/pkg/database"
	"jotium-go/pkg/kafka"
	"jotium-go/pkg/llm"
	"jotium-go/pkg/log"
	"jotium-go/pkg/storage"
	"jotium-go/pkg/token"
)

// 单个清理任务允许执行的最长时间
const cleanupTaskTimeout = 30 * time.Second

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. 初始化 Redis 和可选的 MySQL
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	var turnRepo repository.TurnRepository
	if cfg.Database.MySQL.DSN != "" {
		if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
			log.Warnf("MySQL 初始化失败，对话归档不可用: %v", err)
		} else {
			turnRepo = repository.NewTurnRepository(database.DB)
		}
	}

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.RDB, cfg.Session)
	memoryRepo := repository.NewMemoryRepository(database.RDB, cfg.Session)

	// 5. 初始化模型客户端和工具注册表
	llmClient, err := llm.NewClient(rootCtx, cfg.LLM)
	if err != nil {
		log.Fatal("LLM 客户端初始化失败", err)
	}
	registry := tools.NewRegistry(
		tools.NewDateTimeTool(nil),
		tools.NewWebSearchTool(cfg.Tools.WebSearch),
	)
	for _, t := range tools.NewMemoryTools(memoryRepo) {
		registry.Register(t)
	}
	if cfg.Tools.Slack.WebhookURL != "" {
		registry.Register(tools.NewSlackTool(cfg.Tools.Slack.WebhookURL, nil))
	}
	log.Infof("已注册工具: %v", registry.Names())

	// 6. 初始化 Service (依赖注入)
	assembler := service.NewContextAssembler(conversationRepo, memoryRepo, cfg.Agent.SystemInstruction, cfg.Agent.DefaultHistoryLimit, cfg.Agent.MemoryContextLimit)
	chatService := service.NewChatService(llmClient, registry, assembler, conversationRepo, turnRepo, cfg.Agent)
	conversationService := service.NewConversationService(conversationRepo, memoryRepo, cfg.Session.Retention)
	memoryService := service.NewMemoryService(memoryRepo)

	// 7. 可选组件：MinIO 附件归档、Kafka 清理队列、JWT 认证
	var attachments storage.AttachmentStore
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.NewMinIOStore(rootCtx, cfg.MinIO)
		if err != nil {
			log.Warnf("MinIO 初始化失败，图片附件不归档: %v", err)
		} else {
			attachments = store
		}
	}

	var queue handler.CleanupQueue
	var producer *kafka.Producer
	var consumerDone <-chan struct{}
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
		queue = producer
		consumerDone = kafka.RunConsumer(rootCtx, cfg.Kafka, database.RDB, pipeline.NewCleanupProcessor(conversationService, cleanupTaskTimeout))
	}

	var jwtManager *token.JWTManager
	if cfg.JWT.Secret != "" {
		jwtManager = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	} else {
		log.Warnf("未配置 jwt.secret，API 以匿名模式运行，管理员接口不可用")
	}

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Handlers{
		Chat:         handler.NewChatHandler(chatService, attachments),
		Conversation: handler.NewConversationHandler(conversationService, attachments),
		Memory:       handler.NewMemoryHandler(memoryService),
		System:       handler.NewSystemHandler(conversationService, cfg.Agent, llmClient.Model(), registry.Names()),
		Admin:        handler.NewAdminHandler(turnRepo, queue),
		JWTManager:   jwtManager,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("%s 启动于 %s, model: %s", cfg.Agent.Name, srv.Addr, llmClient.Model())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者，等它退出后再关闭生产者和 Redis
	cancelRoot()
	if consumerDone != nil {
		select {
		case <-consumerDone:
		case <-time.After(cleanupTaskTimeout):
			log.Warnf("等待 Kafka 消费者退出超时")
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if err := database.RDB.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
