package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// CachedUserRepository 用户缓存仓储接口
type CachedUserRepository interface {
	BaseRepository
	Upsert(ctx context.Context, user *models.CachedUser) error
	FindByCardUID(ctx context.Context, cardUID string) (*models.CachedUser, error)
	AddPoints(ctx context.Context, cardUID string, delta int64) error
	TouchVerified(ctx context.Context, cardUID string) error
	GetAll(ctx context.Context, pagination *Pagination) ([]*models.CachedUser, error)
	Count(ctx context.Context) (int64, error)
}

// cachedUserRepo 用户缓存仓储实现
type cachedUserRepo struct {
	*BaseRepo
}

// NewCachedUserRepository 创建用户缓存仓储
func NewCachedUserRepository(db *gorm.DB) CachedUserRepository {
	return &cachedUserRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Upsert 按卡号写入或更新缓存
func (r *cachedUserRepo) Upsert(ctx context.Context, user *models.CachedUser) error {
	var existing models.CachedUser
	err := r.db.WithContext(ctx).Where("card_uid = ?", user.CardUID).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.WithContext(ctx).Create(user).Error
		}
		return err
	}

	existing.UserID = user.UserID
	existing.Name = user.Name
	existing.Points = user.Points
	existing.Status = user.Status
	now := time.Now()
	existing.LastSyncedAt = &now
	if user.LastVerifiedAt != nil {
		existing.LastVerifiedAt = user.LastVerifiedAt
	}

	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return err
	}
	*user = existing
	return nil
}

// FindByCardUID 根据卡号查找缓存用户
func (r *cachedUserRepo) FindByCardUID(ctx context.Context, cardUID string) (*models.CachedUser, error) {
	var user models.CachedUser
	err := r.db.WithContext(ctx).Where("card_uid = ?", cardUID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// AddPoints 增加缓存积分（离线交易后本地先记账）
func (r *cachedUserRepo) AddPoints(ctx context.Context, cardUID string, delta int64) error {
	result := r.db.WithContext(ctx).Model(&models.CachedUser{}).
		Where("card_uid = ?", cardUID).
		UpdateColumn("points", gorm.Expr("points + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchVerified 更新最近验证时间
func (r *cachedUserRepo) TouchVerified(ctx context.Context, cardUID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.CachedUser{}).
		Where("card_uid = ?", cardUID).
		UpdateColumn("last_verified_at", now).Error
}

// GetAll 获取所有缓存用户（分页）
func (r *cachedUserRepo) GetAll(ctx context.Context, pagination *Pagination) ([]*models.CachedUser, error) {
	var users []*models.CachedUser
	query := r.db.WithContext(ctx).Model(&models.CachedUser{})

	var total int64
	query.Count(&total)
	pagination.Total = total

	err := query.
		Scopes(Paginate(pagination)).
		Order("created_at DESC").
		Find(&users).Error
	return users, err
}

// Count 统计缓存用户数量
func (r *cachedUserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CachedUser{}).Count(&count).Error
	return count, err
}

// WithTx 使用事务
func (r *cachedUserRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &cachedUserRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
