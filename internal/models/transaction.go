package models

import (
	"time"

	"gorm.io/gorm"
)

// 投纸交易状态
const (
	TxStatusPending = "pending" // 等待上传
	TxStatusSynced  = "synced"  // 已上传
	TxStatusFailed  = "failed"  // 上传失败（超过重试上限）
)

// PendingTransaction 投纸交易记录表
//
// 在线提交成功的交易也会落库（status=synced），离线交易以
// pending 状态排队，由同步任务批量补传。
type PendingTransaction struct {
	BaseModel
	TransactionID string     `gorm:"uniqueIndex;size:64;not null" json:"transaction_id"`
	CardUID       string     `gorm:"index;size:32;not null" json:"card_uid"`
	UserID        string     `gorm:"index;size:64" json:"user_id"`
	PaperCount    int        `gorm:"not null" json:"paper_count"`
	PointsAwarded int64      `gorm:"default:0" json:"points_awarded"`
	Status        string     `gorm:"size:20;default:'pending';index" json:"status"`
	CreatedOffline bool      `gorm:"default:false" json:"created_offline"`
	Attempts      int        `gorm:"default:0" json:"attempts"`
	LastError     string     `gorm:"size:500" json:"last_error"`
	SyncedAt      *time.Time `json:"synced_at,omitempty"`
	OccurredAt    time.Time  `gorm:"index" json:"occurred_at"`
}

// TableName 指定表名
func (PendingTransaction) TableName() string {
	return "pending_transactions"
}

// BeforeCreate 创建前的钩子
func (t *PendingTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.Status == "" {
		t.Status = TxStatusPending
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now()
	}
	return nil
}

// MarkSynced 标记为已上传
func (t *PendingTransaction) MarkSynced() {
	now := time.Now()
	t.Status = TxStatusSynced
	t.SyncedAt = &now
	t.LastError = ""
}

// MarkFailed 记录一次失败
func (t *PendingTransaction) MarkFailed(errMsg string) {
	t.Attempts++
	t.LastError = errMsg
}

// SyncLog 同步任务执行记录表
type SyncLog struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Trigger     string    `gorm:"size:20" json:"trigger"` // startup, interval, manual
	SyncedCount int       `gorm:"default:0" json:"synced_count"`
	FailedCount int       `gorm:"default:0" json:"failed_count"`
	Duration    int64     `json:"duration"` // 毫秒
	Error       string    `gorm:"size:500" json:"error"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (SyncLog) TableName() string {
	return "sync_logs"
}
