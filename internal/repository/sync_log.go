package repository

import (
	"context"
	"time"

	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/gorm"
)

// SyncLogRepository 同步记录仓储接口
type SyncLogRepository interface {
	BaseRepository
	Create(ctx context.Context, log *models.SyncLog) error
	GetRecent(ctx context.Context, limit int) ([]*models.SyncLog, error)
	DeleteBefore(ctx context.Context, days int) (int64, error)
}

// syncLogRepo 同步记录仓储实现
type syncLogRepo struct {
	*BaseRepo
}

// NewSyncLogRepository 创建同步记录仓储
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建同步记录
func (r *syncLogRepo) Create(ctx context.Context, log *models.SyncLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetRecent 获取最近的同步记录
func (r *syncLogRepo) GetRecent(ctx context.Context, limit int) ([]*models.SyncLog, error) {
	var logs []*models.SyncLog
	if limit <= 0 {
		limit = 20
	}
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// DeleteBefore 清理指定天数之前的记录
func (r *syncLogRepo) DeleteBefore(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.SyncLog{})
	return result.RowsAffected, result.Error
}

// WithTx 使用事务
func (r *syncLogRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &syncLogRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
