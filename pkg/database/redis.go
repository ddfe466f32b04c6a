package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"jotium-go/pkg/log"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。会话和记忆都存放在 Redis 中，连接失败时直接退出。
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Infof("Redis client connected successfully, addr: %s", addr)
}
