// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"jotium-go/internal/config"
	"jotium-go/pkg/log"
	"jotium-go/pkg/tasks"
)

// 同一任务最多处理的次数，超过后提交 offset 放弃重试
const maxAttempts = 3

// TaskProcessor 定义了处理清理任务的服务。Kafka 消费者只依赖这个接口。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.CleanupTask) error
}

// Producer 把清理任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// ProduceCleanupTask 发送一个清理任务，TaskID 和 RequestedAt 为空时自动填充。
func (p *Producer) ProduceCleanupTask(ctx context.Context, task tasks.CleanupTask) (*tasks.CleanupTask, error) {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.RequestedAt.IsZero() {
		task.RequestedAt = time.Now().UTC()
	}
	value, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.UserID), Value: value}); err != nil {
		return nil, fmt.Errorf("failed to produce cleanup task: %w", err)
	}
	return &task, nil
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RunConsumer 在后台 goroutine 中运行 StartConsumer，返回的 channel 在消费者退出后关闭。
// 停机时应先取消 ctx 并等待该 channel，再关闭消费者依赖的 Redis 连接。
func RunConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		StartConsumer(ctx, cfg, rdb, processor)
	}()
	return done
}

// StartConsumer 启动一个 Kafka 消费者来处理清理任务，ctx 取消后退出。
// 失败次数记录在 Redis 中，达到上限后提交 offset 终止重试。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if handleMessage(ctx, rdb, processor, m.Value) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// handleMessage 处理一条消息并返回是否应该提交 offset。
func handleMessage(ctx context.Context, rdb *redis.Client, processor TaskProcessor, value []byte) bool {
	var task tasks.CleanupTask
	if err := json.Unmarshal(value, &task); err != nil || task.UserID == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", attemptID(task))
	log.Infof("开始处理清理任务: taskID=%s, userID=%s", task.TaskID, task.UserID)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理清理任务失败: taskID=%s, error: %v", task.TaskID, err)
		attempts, incErr := rdb.Incr(ctx, attemptsKey).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		_ = rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
		if attempts >= maxAttempts {
			log.Errorf("清理任务多次失败(>=%d)，提交 offset 终止重试: taskID=%s", maxAttempts, task.TaskID)
			return true
		}
		return false
	}

	log.Infof("清理任务处理成功: taskID=%s", task.TaskID)
	_ = rdb.Del(ctx, attemptsKey).Err()
	return true
}

func attemptID(task tasks.CleanupTask) string {
	if task.TaskID != "" {
		return task.TaskID
	}
	return "user:" + task.UserID
}

func brokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
