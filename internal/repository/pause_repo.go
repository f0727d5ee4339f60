package repository

import (
	"context"

	"gorm.io/gorm"

	"tempora/backend/internal/model"
)

// PauseRepository 暂停记录数据访问接口（只追加）
type PauseRepository interface {
	Create(ctx context.Context, pause *model.Pause) error
}

type pauseRepo struct {
	db *gorm.DB
}

// NewPauseRepo 创建 PauseRepository 实例
func NewPauseRepo(db *gorm.DB) PauseRepository {
	return &pauseRepo{db: db}
}

func (r *pauseRepo) Create(ctx context.Context, pause *model.Pause) error {
	return r.db.WithContext(ctx).Create(pause).Error
}
