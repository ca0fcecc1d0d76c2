package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// 兑换任务状态
const (
	RedemptionStatusPending    = "pending"    // 待出纸
	RedemptionStatusProcessing = "processing" // 出纸中
	RedemptionStatusDispensed  = "dispensed"  // 已出纸
	RedemptionStatusFailed     = "failed"     // 出纸失败
)

// 兑换任务来源
const (
	RedemptionSourcePoll     = "poll"     // 轮询拉取
	RedemptionSourceRealtime = "realtime" // 实时推送
)

// Redemption 兑换出纸任务表
type Redemption struct {
	BaseModel
	RedemptionID string     `gorm:"uniqueIndex;size:64;not null" json:"redemption_id"`
	CardUID      string     `gorm:"index;size:32" json:"card_uid"`
	UserID       string     `gorm:"index;size:64" json:"user_id"`
	RewardName   string     `gorm:"size:100" json:"reward_name"`
	Cycles       int        `gorm:"default:1" json:"cycles"`
	Source       string     `gorm:"size:20;default:'poll'" json:"source"`
	Status       string     `gorm:"size:20;default:'pending';index" json:"status"`
	Error        string     `gorm:"size:500" json:"error"`
	DispensedAt  *time.Time `json:"dispensed_at,omitempty"`
}

// TableName 指定表名
func (Redemption) TableName() string {
	return "redemptions"
}

// BeforeCreate 创建前的钩子
func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = RedemptionStatusPending
	}
	if r.Source == "" {
		r.Source = RedemptionSourcePoll
	}
	if r.Cycles <= 0 {
		r.Cycles = 1
	}
	return nil
}

// MarkDispensed 标记为已出纸
func (r *Redemption) MarkDispensed() {
	now := time.Now()
	r.Status = RedemptionStatusDispensed
	r.DispensedAt = &now
}

// MarkFailed 标记为出纸失败
func (r *Redemption) MarkFailed(errMsg string) {
	r.Status = RedemptionStatusFailed
	r.Error = errMsg
}

// CyclesForReward 根据奖品名称推算出纸循环次数
//
// 奖品名称形如 "5 sheet"、"1 sheet pack"，取名称里的纸张数。
// 无法识别时按1次处理。
func CyclesForReward(rewardName string) int {
	name := strings.ToLower(strings.TrimSpace(rewardName))
	if strings.Contains(name, "5 sheet") {
		return 5
	}
	return 1
}
