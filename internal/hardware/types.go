package hardware

import "time"

// ServoChannel 舵机通道
type ServoChannel byte

const (
	// ServoCollect 回收口舵机（投入纸张落入回收箱）
	ServoCollect ServoChannel = 0x01
	// ServoReward 出纸口舵机（奖励纸张送出）
	ServoReward ServoChannel = 0x02
)

// LEDState LED指示灯状态
type LEDState byte

const (
	LEDOff      LEDState = 0x00
	LEDIdle     LEDState = 0x01 // 待机呼吸灯
	LEDActive   LEDState = 0x02 // 交易进行中
	LEDSuccess  LEDState = 0x03 // 成功
	LEDError    LEDState = 0x04 // 错误
	LEDScanning LEDState = 0x05 // 读卡/扫码中
)

// SensorHealth 传感器健康状态
type SensorHealth struct {
	IRSensorOK     bool      `json:"ir_sensor_ok"`
	CardReaderOK   bool      `json:"card_reader_ok"`
	ServoCollectOK bool      `json:"servo_collect_ok"`
	ServoRewardOK  bool      `json:"servo_reward_ok"`
	LastCheckedAt  time.Time `json:"last_checked_at"`
}

// Healthy 所有传感器是否正常
func (h *SensorHealth) Healthy() bool {
	return h.IRSensorOK && h.CardReaderOK && h.ServoCollectOK && h.ServoRewardOK
}

// BoardStatus 控制板状态
type BoardStatus struct {
	Connected       bool          `json:"connected"`
	PaperPresent    bool          `json:"paper_present"`
	ServoAngles     map[ServoChannel]float64 `json:"servo_angles"`
	LEDState        LEDState      `json:"led_state"`
	SensorHealth    *SensorHealth `json:"sensor_health"`
	LastCommand     string        `json:"last_command"`
	LastCommandTime time.Time     `json:"last_command_time"`
	ErrorCount      int           `json:"error_count"`
}

// CardEvent 读卡事件
type CardEvent struct {
	UID    string    `json:"uid"`
	ReadAt time.Time `json:"read_at"`
}

// StatusCallback 状态回调函数
type StatusCallback func(status *BoardStatus)
