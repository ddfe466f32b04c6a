package repository

import (
	"context"

	"jotium-go/internal/model"

	"gorm.io/gorm"
)

// TurnRepository 定义了对话轮次归档的持久化操作。
type TurnRepository interface {
	Create(ctx context.Context, record *model.TurnRecord) error
	FindWithPagination(ctx context.Context, userID string, offset, limit int) ([]model.TurnRecord, int64, error)
}

// turnRepository 是 TurnRepository 接口的 GORM 实现。
type turnRepository struct {
	db *gorm.DB
}

// NewTurnRepository 创建一个新的 TurnRepository 实例。
func NewTurnRepository(db *gorm.DB) TurnRepository {
	return &turnRepository{db: db}
}

// Create 插入一条轮次记录。
func (r *turnRepository) Create(ctx context.Context, record *model.TurnRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindWithPagination 分页查询轮次记录，userID 为空时查询全部用户，按创建时间倒序。
func (r *turnRepository) FindWithPagination(ctx context.Context, userID string, offset, limit int) ([]model.TurnRecord, int64, error) {
	var records []model.TurnRecord
	var total int64

	query := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&model.TurnRecord{})
		if userID != "" {
			db = db.Where("user_id = ?", userID)
		}
		return db
	}

	// 首先计算总记录数
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query().Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
