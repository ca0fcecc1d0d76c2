package hardware

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/recycle-kiosk/internal/logger"
	"go.uber.org/zap"
)

// ServoMove 舵机动作记录（用于测试断言）
type ServoMove struct {
	Channel ServoChannel
	Angle   float64
	MovedAt time.Time
}

// DisplayRecord 显示内容记录
type DisplayRecord struct {
	Line1 string
	Line2 string
}

// MockController 模拟控制板
//
// mock_mode下替代真实串口控制板运行，同时供各包单元测试使用。
// 红外读数通过QueueIRReadings预置，读完后保持最后一个值。
type MockController struct {
	mu        sync.Mutex
	connected bool

	irReadings []bool
	irLast     bool
	irErr      error

	pendingCard *CardEvent

	servoMoves []ServoMove
	servoErr   error
	servoFailAt int // 第N次舵机命令返回错误（0表示不注入）
	servoCalls  int

	displays []DisplayRecord
	ledState LEDState

	health *SensorHealth

	statusCallback StatusCallback
	logger         *zap.Logger
}

// NewMockController 创建模拟控制板
func NewMockController() *MockController {
	return &MockController{
		health: &SensorHealth{
			IRSensorOK:     true,
			CardReaderOK:   true,
			ServoCollectOK: true,
			ServoRewardOK:  true,
			LastCheckedAt:  time.Now(),
		},
		logger: logger.GetLogger(),
	}
}

// Connect 连接（模拟）
func (m *MockController) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.logger.Info("模拟控制板已连接")
	return nil
}

// Disconnect 断开（模拟）
func (m *MockController) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected 检查连接状态
func (m *MockController) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// PaperPresent 按预置序列返回红外读数
func (m *MockController) PaperPresent() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return false, errors.New("mock controller not connected")
	}
	if m.irErr != nil {
		return false, m.irErr
	}

	if len(m.irReadings) > 0 {
		m.irLast = m.irReadings[0]
		m.irReadings = m.irReadings[1:]
	}
	return m.irLast, nil
}

// PollCard 返回注入的卡片（一次性）
func (m *MockController) PollCard() (*CardEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, false, errors.New("mock controller not connected")
	}

	if m.pendingCard == nil {
		return nil, false, nil
	}
	event := m.pendingCard
	m.pendingCard = nil
	return event, true, nil
}

// SetServoAngle 记录舵机动作
func (m *MockController) SetServoAngle(ch ServoChannel, angle float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return errors.New("mock controller not connected")
	}

	m.servoCalls++
	if m.servoFailAt > 0 && m.servoCalls == m.servoFailAt {
		return errors.New("mock servo fault")
	}
	if m.servoErr != nil {
		return m.servoErr
	}

	if angle < 0 {
		angle = 0
	} else if angle > 180 {
		angle = 180
	}

	m.servoMoves = append(m.servoMoves, ServoMove{
		Channel: ch,
		Angle:   angle,
		MovedAt: time.Now(),
	})
	return nil
}

// DisplayMessage 记录显示内容
func (m *MockController) DisplayMessage(line1, line2 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return errors.New("mock controller not connected")
	}

	m.displays = append(m.displays, DisplayRecord{Line1: line1, Line2: line2})
	return nil
}

// ClearDisplay 清空显示
func (m *MockController) ClearDisplay() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displays = append(m.displays, DisplayRecord{})
	return nil
}

// SetLED 设置LED状态
func (m *MockController) SetLED(state LEDState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledState = state
	return nil
}

// GetStatus 获取状态快照
func (m *MockController) GetStatus() (*BoardStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	angles := make(map[ServoChannel]float64)
	for _, move := range m.servoMoves {
		angles[move.Channel] = move.Angle
	}

	healthCopy := *m.health
	return &BoardStatus{
		Connected:    m.connected,
		PaperPresent: m.irLast,
		ServoAngles:  angles,
		LEDState:     m.ledState,
		SensorHealth: &healthCopy,
	}, nil
}

// GetSensorHealth 获取传感器健康状态
func (m *MockController) GetSensorHealth() (*SensorHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, errors.New("mock controller not connected")
	}
	healthCopy := *m.health
	return &healthCopy, nil
}

// SetStatusCallback 设置状态回调
func (m *MockController) SetStatusCallback(callback StatusCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCallback = callback
}

// 以下为测试辅助方法

// QueueIRReadings 预置红外读数序列
func (m *MockController) QueueIRReadings(readings ...bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.irReadings = append(m.irReadings, readings...)
}

// SetIRError 注入红外读取错误
func (m *MockController) SetIRError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.irErr = err
}

// InjectCard 注入一张待读卡片
func (m *MockController) InjectCard(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingCard = &CardEvent{UID: uid, ReadAt: time.Now()}
}

// FailServoAt 注入舵机故障：第n次舵机命令返回错误
func (m *MockController) FailServoAt(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servoFailAt = n
}

// ServoMoves 获取舵机动作历史
func (m *MockController) ServoMoves() []ServoMove {
	m.mu.Lock()
	defer m.mu.Unlock()
	moves := make([]ServoMove, len(m.servoMoves))
	copy(moves, m.servoMoves)
	return moves
}

// Displays 获取显示历史
func (m *MockController) Displays() []DisplayRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]DisplayRecord, len(m.displays))
	copy(records, m.displays)
	return records
}

// LED 获取当前LED状态
func (m *MockController) LED() LEDState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledState
}

// SetHealth 设置传感器健康状态
func (m *MockController) SetHealth(health *SensorHealth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = health
}
