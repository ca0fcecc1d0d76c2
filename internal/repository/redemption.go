package repository

import (
	"context"
	"errors"

	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/gorm"
)

// RedemptionRepository 兑换任务仓储接口
type RedemptionRepository interface {
	BaseRepository
	Create(ctx context.Context, redemption *models.Redemption) error
	Update(ctx context.Context, redemption *models.Redemption) error
	FindByRedemptionID(ctx context.Context, redemptionID string) (*models.Redemption, error)
	MarkDispensed(ctx context.Context, redemptionID string) error
	MarkFailed(ctx context.Context, redemptionID string, errMsg string) error
	GetRecent(ctx context.Context, pagination *Pagination) ([]*models.Redemption, error)
}

// redemptionRepo 兑换任务仓储实现
type redemptionRepo struct {
	*BaseRepo
}

// NewRedemptionRepository 创建兑换任务仓储
func NewRedemptionRepository(db *gorm.DB) RedemptionRepository {
	return &redemptionRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建兑换记录
func (r *redemptionRepo) Create(ctx context.Context, redemption *models.Redemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

// Update 更新兑换记录
func (r *redemptionRepo) Update(ctx context.Context, redemption *models.Redemption) error {
	return r.db.WithContext(ctx).Save(redemption).Error
}

// FindByRedemptionID 根据兑换ID查找
func (r *redemptionRepo) FindByRedemptionID(ctx context.Context, redemptionID string) (*models.Redemption, error) {
	var redemption models.Redemption
	err := r.db.WithContext(ctx).Where("redemption_id = ?", redemptionID).First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &redemption, nil
}

// MarkDispensed 标记为已出纸
func (r *redemptionRepo) MarkDispensed(ctx context.Context, redemptionID string) error {
	return r.db.WithContext(ctx).Model(&models.Redemption{}).
		Where("redemption_id = ?", redemptionID).
		Updates(map[string]interface{}{
			"status":       models.RedemptionStatusDispensed,
			"dispensed_at": gorm.Expr("CURRENT_TIMESTAMP"),
			"error":        "",
		}).Error
}

// MarkFailed 标记为出纸失败
func (r *redemptionRepo) MarkFailed(ctx context.Context, redemptionID string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.Redemption{}).
		Where("redemption_id = ?", redemptionID).
		Updates(map[string]interface{}{
			"status": models.RedemptionStatusFailed,
			"error":  errMsg,
		}).Error
}

// GetRecent 获取最近的兑换记录（分页）
func (r *redemptionRepo) GetRecent(ctx context.Context, pagination *Pagination) ([]*models.Redemption, error) {
	var redemptions []*models.Redemption
	query := r.db.WithContext(ctx).Model(&models.Redemption{})

	var total int64
	query.Count(&total)
	pagination.Total = total

	err := query.
		Scopes(Paginate(pagination)).
		Order("created_at DESC").
		Find(&redemptions).Error
	return redemptions, err
}

// WithTx 使用事务
func (r *redemptionRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &redemptionRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
