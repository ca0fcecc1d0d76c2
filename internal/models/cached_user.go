package models

import (
	"time"

	"gorm.io/gorm"
)

// CachedUser 用户本地缓存表（离线验证使用）
type CachedUser struct {
	BaseModel
	CardUID        string     `gorm:"uniqueIndex;size:32;not null" json:"card_uid"`
	UserID         string     `gorm:"index;size:64" json:"user_id"`
	Name           string     `gorm:"size:100" json:"name"`
	Points         int64      `gorm:"default:0" json:"points"`
	Status         string     `gorm:"size:20;default:'active'" json:"status"` // active, frozen
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// TableName 指定表名
func (CachedUser) TableName() string {
	return "cached_users"
}

// BeforeCreate 创建前的钩子
func (u *CachedUser) BeforeCreate(tx *gorm.DB) error {
	if u.Status == "" {
		u.Status = "active"
	}
	return nil
}

// IsActive 检查缓存用户是否可用
func (u *CachedUser) IsActive() bool {
	return u.Status == "active"
}

// MarkVerified 记录一次成功验证
func (u *CachedUser) MarkVerified() {
	now := time.Now()
	u.LastVerifiedAt = &now
}
