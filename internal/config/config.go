// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Session  SessionConfig  `mapstructure:"session"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Tools    ToolsConfig    `mapstructure:"tools"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不启用对话归档。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。Secret 为空时不启用认证。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不启用清理任务队列。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不归档图片附件。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	// Provider 取值 gemini 或 openai（任何 OpenAI 兼容接口，例如 DeepSeek）。
	Provider   string              `mapstructure:"provider"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// SessionConfig 控制会话与记忆在 Redis 中的存储上限和过期时间。
type SessionConfig struct {
	ChatHistoryLimit        int           `mapstructure:"chat_history_limit"`
	ConversationTTL         time.Duration `mapstructure:"conversation_ttl"`
	MemoryTTL               time.Duration `mapstructure:"memory_ttl"`
	MaxConversationsPerUser int           `mapstructure:"max_conversations_per_user"`
	Retention               time.Duration `mapstructure:"retention"`
}

// AgentConfig 控制智能体的身份、系统提示词以及工具循环的上限。
type AgentConfig struct {
	Name                string        `mapstructure:"name"`
	Version             string        `mapstructure:"version"`
	SystemInstruction   string        `mapstructure:"system_instruction"`
	MaxIterations       int           `mapstructure:"max_iterations"`
	TurnTimeout         time.Duration `mapstructure:"turn_timeout"`
	PersistTimeout      time.Duration `mapstructure:"persist_timeout"`
	DefaultHistoryLimit int           `mapstructure:"default_history_limit"`
	MemoryContextLimit  int           `mapstructure:"memory_context_limit"`
}

// ToolsConfig 存储内置工具的配置。
type ToolsConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	Slack     SlackConfig     `mapstructure:"slack"`
}

// WebSearchConfig 配置网页搜索工具。
type WebSearchConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	// HTMLEndpoint 是 Instant Answer 没有结果时使用的 HTML 搜索页。
	HTMLEndpoint string        `mapstructure:"html_endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SlackConfig 配置 Slack 消息工具，WebhookURL 为空时不注册该工具。
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

const defaultSystemInstruction = `You are Jotium, a helpful and precise assistant.
Think through problems step by step, use the available tools when they give you better information
than you already have, and answer clearly. When you learn a durable fact about the user, you may
store it with the memory tools so it can be recalled in later conversations.`

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire_hours", 24)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "jotium-cleanup")
	v.SetDefault("kafka.group_id", "jotium-go-consumer")

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "jotium-attachments")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.generation.temperature", 0.3)
	v.SetDefault("llm.generation.max_tokens", 0)

	v.SetDefault("session.chat_history_limit", 100)
	v.SetDefault("session.conversation_ttl", 30*24*time.Hour)
	v.SetDefault("session.memory_ttl", 90*24*time.Hour)
	v.SetDefault("session.max_conversations_per_user", 50)
	v.SetDefault("session.retention", 30*24*time.Hour)

	v.SetDefault("agent.name", "Jotium")
	v.SetDefault("agent.version", "1.0.0")
	v.SetDefault("agent.system_instruction", defaultSystemInstruction)
	v.SetDefault("agent.max_iterations", 8)
	v.SetDefault("agent.turn_timeout", 2*time.Minute)
	v.SetDefault("agent.persist_timeout", 5*time.Second)
	v.SetDefault("agent.default_history_limit", 10)
	v.SetDefault("agent.memory_context_limit", 10)

	v.SetDefault("tools.web_search.endpoint", "https://api.duckduckgo.com/")
	v.SetDefault("tools.web_search.html_endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("tools.web_search.timeout", 10*time.Second)
	v.SetDefault("tools.slack.webhook_url", "")
}

// Load 从指定路径读取 YAML 文件并返回解析后的配置。
// 环境变量以 JOTIUM_ 为前缀覆盖同名配置项，例如 JOTIUM_LLM_API_KEY。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("JOTIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
