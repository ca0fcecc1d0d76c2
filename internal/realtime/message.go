package realtime

import "encoding/json"

// 消息类型
const (
	TypeRegister          = "machine:register"
	TypeRegisterSuccess   = "machine:register:success"
	TypeRegisterError     = "machine:register:error"
	TypeCommand           = "machine:command"
	TypeMachineStatus     = "machine:status"
	TypeScanRequest       = "rfid:scan_request"
	TypeScanCancel        = "rfid:scan_cancel"
	TypeScanResult        = "rfid:scan_result"
	TypeRedemption        = "redemption:dispense"
	TypeRedemptionError   = "redemption:dispense:error"
	TypeSensorData        = "sensor:data"
	TypeTransactionUpdate = "transaction:update"
)

// Message 事件通道消息信封
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage 构造消息，payload序列化失败时Data为空
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return msg, nil
}

// RegisterPayload 机器注册
type RegisterPayload struct {
	MachineID string `json:"machineId"`
	Secret    string `json:"secret"`
}

// ScanRequest 后台发起的扫卡请求（会员注册绑卡）
type ScanRequest struct {
	RequestID string `json:"requestId"`
	TimeoutMs int    `json:"timeoutMs"`
	Source    string `json:"source"`
}

// ScanCancel 扫卡取消
type ScanCancel struct {
	RequestID string `json:"requestId"`
}

// ScanResult 扫卡结果回传
type ScanResult struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Tag       string `json:"rfidTag,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RedemptionPush 后台实时下发的兑换出纸任务
type RedemptionPush struct {
	RedemptionID string      `json:"redemptionId"`
	RewardName   string      `json:"rewardName"`
	CardUID      string      `json:"rfidTag"`
	UserID       json.Number `json:"userId"`
}

// RedemptionError 兑换出纸失败上报
type RedemptionError struct {
	RedemptionID string `json:"redemptionId"`
	Error        string `json:"error"`
}

// Command 管理端下发的控制命令
type Command struct {
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	FromAdmin string         `json:"fromAdmin,omitempty"`
}

// SensorData 传感器实时数据
type SensorData struct {
	MachineID  string `json:"machineId"`
	SensorType string `json:"sensorType"`
	Value      any    `json:"value"`
	Timestamp  string `json:"timestamp"`
}

// TransactionUpdate 交易状态实时更新
type TransactionUpdate struct {
	MachineID     string         `json:"machineId"`
	TransactionID string         `json:"transactionId"`
	Status        string         `json:"status"`
	Details       map[string]any `json:"details,omitempty"`
	Timestamp     string         `json:"timestamp"`
}

// MachineStatus 机器状态上报
type MachineStatus struct {
	MachineID    string            `json:"machineId"`
	Status       string            `json:"status"`
	SensorHealth map[string]string `json:"sensorHealth,omitempty"`
	PaperStock   int               `json:"bondPaperStock"`
	Timestamp    string            `json:"timestamp"`
}
