package repository

import (
	"context"
	"errors"

	"github.com/wfunc/recycle-kiosk/internal/models"
	"gorm.io/gorm"
)

// PendingTransactionRepository 投纸交易仓储接口
type PendingTransactionRepository interface {
	BaseRepository
	Create(ctx context.Context, txn *models.PendingTransaction) error
	Update(ctx context.Context, txn *models.PendingTransaction) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.PendingTransaction, error)
	FindPending(ctx context.Context, limit int) ([]*models.PendingTransaction, error)
	CountPending(ctx context.Context) (int64, error)
	MarkSynced(ctx context.Context, transactionID string) error
	MarkFailed(ctx context.Context, transactionID string, errMsg string, maxAttempts int) error
	GetRecent(ctx context.Context, pagination *Pagination) ([]*models.PendingTransaction, error)
}

// pendingTransactionRepo 投纸交易仓储实现
type pendingTransactionRepo struct {
	*BaseRepo
}

// NewPendingTransactionRepository 创建投纸交易仓储
func NewPendingTransactionRepository(db *gorm.DB) PendingTransactionRepository {
	return &pendingTransactionRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建交易记录
func (r *pendingTransactionRepo) Create(ctx context.Context, txn *models.PendingTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// Update 更新交易记录
func (r *pendingTransactionRepo) Update(ctx context.Context, txn *models.PendingTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

// FindByTransactionID 根据交易ID查找
func (r *pendingTransactionRepo) FindByTransactionID(ctx context.Context, transactionID string) (*models.PendingTransaction, error) {
	var txn models.PendingTransaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// FindPending 查找待上传的交易（按发生时间先进先出）
func (r *pendingTransactionRepo) FindPending(ctx context.Context, limit int) ([]*models.PendingTransaction, error) {
	var txns []*models.PendingTransaction
	query := r.db.WithContext(ctx).
		Where("status = ?", models.TxStatusPending).
		Order("occurred_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&txns).Error
	return txns, err
}

// CountPending 统计待上传交易数量
func (r *pendingTransactionRepo) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PendingTransaction{}).
		Where("status = ?", models.TxStatusPending).
		Count(&count).Error
	return count, err
}

// MarkSynced 标记交易为已上传
func (r *pendingTransactionRepo) MarkSynced(ctx context.Context, transactionID string) error {
	return r.db.WithContext(ctx).Model(&models.PendingTransaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"status":     models.TxStatusSynced,
			"synced_at":  gorm.Expr("CURRENT_TIMESTAMP"),
			"last_error": "",
		}).Error
}

// MarkFailed 记录一次上传失败。maxAttempts大于0时，累计失败
// 达到上限的交易置为failed，不再参与后续补传。
func (r *pendingTransactionRepo) MarkFailed(ctx context.Context, transactionID string, errMsg string, maxAttempts int) error {
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": errMsg,
	}
	if maxAttempts > 0 {
		updates["status"] = gorm.Expr(
			"CASE WHEN attempts + 1 >= ? THEN ? ELSE status END",
			maxAttempts, models.TxStatusFailed)
	}
	return r.db.WithContext(ctx).Model(&models.PendingTransaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(updates).Error
}

// GetRecent 获取最近的交易记录（分页）
func (r *pendingTransactionRepo) GetRecent(ctx context.Context, pagination *Pagination) ([]*models.PendingTransaction, error) {
	var txns []*models.PendingTransaction
	query := r.db.WithContext(ctx).Model(&models.PendingTransaction{})

	var total int64
	query.Count(&total)
	pagination.Total = total

	err := query.
		Scopes(Paginate(pagination)).
		Order("occurred_at DESC").
		Find(&txns).Error
	return txns, err
}

// WithTx 使用事务
func (r *pendingTransactionRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &pendingTransactionRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
