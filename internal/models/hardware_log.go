package models

import (
	"time"

	"gorm.io/gorm"
)

// HardwareLogLevel 硬件日志级别
type HardwareLogLevel string

const (
	HardwareLogLevelInfo  HardwareLogLevel = "INFO"
	HardwareLogLevelDebug HardwareLogLevel = "DEBUG"
	HardwareLogLevelWarn  HardwareLogLevel = "WARN"
	HardwareLogLevelError HardwareLogLevel = "ERROR"
)

// HardwareLog 控制板通信日志
//
// 记录与控制板之间的串口交互，用于排查读卡、传感器和舵机故障。
type HardwareLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Direction string           `gorm:"type:varchar(10);index;not null" json:"direction"` // SEND/RECEIVE
	Level     HardwareLogLevel `gorm:"type:varchar(10);default:INFO" json:"level"`

	Command  string `gorm:"type:varchar(255);index" json:"command,omitempty"`  // 命令内容（如 "SERVO A 90"）
	Function string `gorm:"type:varchar(100);index" json:"function,omitempty"` // 功能名称（如 "servo", "ir", "rfid"）

	RawData    string `gorm:"type:text" json:"raw_data,omitempty"`
	HexData    string `gorm:"type:text" json:"hex_data,omitempty"`
	BytesCount int    `gorm:"default:0" json:"bytes_count"`

	ResponseMsg string `gorm:"type:varchar(255)" json:"response_msg,omitempty"`
	ErrorMsg    string `gorm:"type:text" json:"error_msg,omitempty"`

	TransactionID string `gorm:"type:varchar(64);index" json:"transaction_id,omitempty"`

	Duration  int64 `gorm:"default:0" json:"duration,omitempty"` // 处理时长（毫秒）
	Timestamp int64 `gorm:"index" json:"timestamp"`              // Unix时间戳（毫秒）
}

// TableName 指定表名
func (HardwareLog) TableName() string {
	return "hardware_logs"
}

// BeforeCreate 创建前的钩子
func (h *HardwareLog) BeforeCreate(tx *gorm.DB) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	if h.Timestamp == 0 {
		h.Timestamp = time.Now().UnixMilli()
	}
	return nil
}
