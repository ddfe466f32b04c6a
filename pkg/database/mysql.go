// Package database 负责初始化 Redis 和 MySQL 连接。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"jotium-go/internal/model"
	"jotium-go/pkg/log"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接并迁移对话归档表。
// MySQL 只用于归档，连接失败时返回错误，由调用方决定是否降级运行。
func InitMySQL(dsn string) error {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&model.TurnRecord{}); err != nil {
		return fmt.Errorf("failed to migrate turn_records: %w", err)
	}

	DB = db
	log.Info("MySQL database connected successfully")
	return nil
}
