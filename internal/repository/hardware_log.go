package repository

import (
	"context"
	"time"

	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/gorm"
)

// HardwareLogRepository 硬件日志仓储接口
type HardwareLogRepository interface {
	BaseRepository
	Create(ctx context.Context, log *models.HardwareLog) error
	BatchCreate(ctx context.Context, logs []*models.HardwareLog) error
	GetRecent(ctx context.Context, limit int) ([]*models.HardwareLog, error)
	FindByFunction(ctx context.Context, function string, pagination *Pagination) ([]*models.HardwareLog, error)
	DeleteBefore(ctx context.Context, days int) (int64, error)
}

// hardwareLogRepo 硬件日志仓储实现
type hardwareLogRepo struct {
	*BaseRepo
}

// NewHardwareLogRepository 创建硬件日志仓储
func NewHardwareLogRepository(db *gorm.DB) HardwareLogRepository {
	return &hardwareLogRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建硬件日志
func (r *hardwareLogRepo) Create(ctx context.Context, log *models.HardwareLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// BatchCreate 批量创建硬件日志
func (r *hardwareLogRepo) BatchCreate(ctx context.Context, logs []*models.HardwareLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

// GetRecent 获取最近的硬件日志
func (r *hardwareLogRepo) GetRecent(ctx context.Context, limit int) ([]*models.HardwareLog, error) {
	var logs []*models.HardwareLog
	if limit <= 0 {
		limit = 50
	}
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// FindByFunction 按功能名称查询硬件日志（分页）
func (r *hardwareLogRepo) FindByFunction(ctx context.Context, function string, pagination *Pagination) ([]*models.HardwareLog, error) {
	var logs []*models.HardwareLog
	query := r.db.WithContext(ctx).Model(&models.HardwareLog{}).
		Where("function = ?", function)

	var total int64
	query.Count(&total)
	pagination.Total = total

	err := query.
		Scopes(Paginate(pagination)).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

// DeleteBefore 清理指定天数之前的日志
func (r *hardwareLogRepo) DeleteBefore(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.HardwareLog{})
	return result.RowsAffected, result.Error
}

// WithTx 使用事务
func (r *hardwareLogRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &hardwareLogRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
