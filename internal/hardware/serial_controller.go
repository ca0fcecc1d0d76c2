package hardware

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"go.uber.org/zap"
)

// Command 控制板命令
type Command byte

const (
	CmdServoSet     Command = 0x01
	CmdLEDSet       Command = 0x05
	CmdDisplay      Command = 0x06
	CmdClearDisplay Command = 0x07
	CmdReadIR       Command = 0x10
	CmdPollCard     Command = 0x11
	CmdReadHealth   Command = 0x20
	CmdHeartbeat    Command = 0x40
)

// SerialConfig 串口配置
type SerialConfig struct {
	Port          string        `yaml:"port"`
	BaudRate      int           `yaml:"baud_rate"`
	DataBits      byte          `yaml:"data_bits"`
	StopBits      byte          `yaml:"stop_bits"`
	Parity        string        `yaml:"parity"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	RetryTimes    int           `yaml:"retry_times"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	DisplayCols   int           `yaml:"display_cols"`
}

// SerialController 串口控制板实现
type SerialController struct {
	config         *SerialConfig
	port           *serial.Port
	connected      bool
	mu             sync.RWMutex
	cmdMu          sync.Mutex // 串行化整条命令的写入与应答读取
	status         *BoardStatus
	statusCallback StatusCallback
	recorder       *LogRecorder
	stopChan       chan struct{}
	logger         *zap.Logger
}

// NewSerialController 创建串口控制板
func NewSerialController(config *SerialConfig) *SerialController {
	return &SerialController{
		config: config,
		status: &BoardStatus{
			ServoAngles:  make(map[ServoChannel]float64),
			SensorHealth: &SensorHealth{},
		},
		stopChan: make(chan struct{}),
		logger:   logger.GetLogger(),
	}
}

// Connect 连接串口
func (s *SerialController) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	// 解析校验位
	parity := serial.ParityNone
	switch s.config.Parity {
	case "O", "odd":
		parity = serial.ParityOdd
	case "E", "even":
		parity = serial.ParityEven
	}

	// 配置串口
	config := &serial.Config{
		Name:        s.config.Port,
		Baud:        s.config.BaudRate,
		Size:        s.config.DataBits,
		Parity:      parity,
		StopBits:    serial.StopBits(s.config.StopBits),
		ReadTimeout: s.config.ReadTimeout,
	}

	// 打开串口
	port, err := serial.OpenPort(config)
	if err != nil {
		s.logger.Error("打开串口失败",
			zap.String("port", s.config.Port),
			zap.Error(err))
		return fmt.Errorf("open serial port: %w", err)
	}

	s.port = port
	s.connected = true
	s.status.Connected = true
	s.stopChan = make(chan struct{})

	// 启动心跳和状态监控
	go s.heartbeatLoop()
	go s.healthMonitor()

	s.logger.Info("串口连接成功",
		zap.String("port", s.config.Port),
		zap.Int("baud_rate", s.config.BaudRate))

	return nil
}

// Disconnect 断开连接
func (s *SerialController) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	// 停止监控
	close(s.stopChan)

	// 关闭串口
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			s.logger.Error("关闭串口失败", zap.Error(err))
			return err
		}
	}

	s.connected = false
	s.status.Connected = false
	s.port = nil

	s.logger.Info("串口已断开")

	return nil
}

// IsConnected 检查连接状态
func (s *SerialController) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// PaperPresent 读取红外对射状态
func (s *SerialController) PaperPresent() (bool, error) {
	if !s.IsConnected() {
		return false, errors.New("serial port not connected")
	}

	cmd := s.buildCommand(CmdReadIR, nil)
	resp, err := s.sendCommandWithResponse(cmd, s.config.ReadTimeout)
	if err != nil {
		return false, fmt.Errorf("read ir sensor: %w", err)
	}

	if len(resp) < 1 {
		return false, errors.New("invalid response length")
	}

	// 对射被遮挡时控制板回报0x01
	present := resp[0] == 1

	s.mu.Lock()
	s.status.PaperPresent = present
	s.mu.Unlock()

	return present, nil
}

// PollCard 非阻塞查询读卡器
func (s *SerialController) PollCard() (*CardEvent, bool, error) {
	if !s.IsConnected() {
		return nil, false, errors.New("serial port not connected")
	}

	cmd := s.buildCommand(CmdPollCard, nil)
	resp, err := s.sendCommandWithResponse(cmd, s.config.ReadTimeout)
	if err != nil {
		return nil, false, fmt.Errorf("poll card reader: %w", err)
	}

	// 无卡时回报空数据
	if len(resp) == 0 {
		return nil, false, nil
	}

	uid := strings.ToUpper(fmt.Sprintf("%X", resp))
	event := &CardEvent{
		UID:    uid,
		ReadAt: time.Now(),
	}

	s.logger.Debug("读到卡片", zap.String("uid", uid))

	return event, true, nil
}

// SetServoAngle 设置舵机角度
func (s *SerialController) SetServoAngle(ch ServoChannel, angle float64) error {
	if !s.IsConnected() {
		return errors.New("serial port not connected")
	}

	// 限制角度范围
	if angle < 0 {
		angle = 0
	} else if angle > 180 {
		angle = 180
	}

	cmd := s.buildCommand(CmdServoSet, []byte{byte(ch), byte(angle)})

	if err := s.sendCommand(cmd); err != nil {
		return fmt.Errorf("send servo command: %w", err)
	}

	s.mu.Lock()
	s.status.ServoAngles[ch] = angle
	s.status.LastCommand = "SetServoAngle"
	s.status.LastCommandTime = time.Now()
	s.mu.Unlock()

	return nil
}

// DisplayMessage 在LCD上显示两行文本
func (s *SerialController) DisplayMessage(line1, line2 string) error {
	if !s.IsConnected() {
		return errors.New("serial port not connected")
	}

	cols := s.config.DisplayCols
	if cols <= 0 {
		cols = 16
	}

	data := []byte(padLine(line1, cols) + padLine(line2, cols))
	cmd := s.buildCommand(CmdDisplay, data)

	if err := s.sendCommand(cmd); err != nil {
		return fmt.Errorf("send display command: %w", err)
	}

	s.mu.Lock()
	s.status.LastCommand = "DisplayMessage"
	s.status.LastCommandTime = time.Now()
	s.mu.Unlock()

	return nil
}

// ClearDisplay 清空LCD
func (s *SerialController) ClearDisplay() error {
	if !s.IsConnected() {
		return errors.New("serial port not connected")
	}

	cmd := s.buildCommand(CmdClearDisplay, nil)
	return s.sendCommand(cmd)
}

// SetLED 设置LED指示灯
func (s *SerialController) SetLED(state LEDState) error {
	if !s.IsConnected() {
		return errors.New("serial port not connected")
	}

	cmd := s.buildCommand(CmdLEDSet, []byte{byte(state)})

	if err := s.sendCommand(cmd); err != nil {
		return fmt.Errorf("send led command: %w", err)
	}

	s.mu.Lock()
	s.status.LEDState = state
	s.status.LastCommand = "SetLED"
	s.status.LastCommandTime = time.Now()
	s.mu.Unlock()

	return nil
}

// GetStatus 获取控制板状态
func (s *SerialController) GetStatus() (*BoardStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// 返回状态副本
	status := *s.status
	status.ServoAngles = make(map[ServoChannel]float64, len(s.status.ServoAngles))
	for ch, angle := range s.status.ServoAngles {
		status.ServoAngles[ch] = angle
	}
	if s.status.SensorHealth != nil {
		healthCopy := *s.status.SensorHealth
		status.SensorHealth = &healthCopy
	}

	return &status, nil
}

// GetSensorHealth 查询传感器健康状态
func (s *SerialController) GetSensorHealth() (*SensorHealth, error) {
	if !s.IsConnected() {
		return nil, errors.New("serial port not connected")
	}

	cmd := s.buildCommand(CmdReadHealth, nil)
	resp, err := s.sendCommandWithResponse(cmd, s.config.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("read sensor health: %w", err)
	}

	if len(resp) < 4 {
		return nil, errors.New("invalid response length")
	}

	health := &SensorHealth{
		IRSensorOK:     resp[0] == 1,
		CardReaderOK:   resp[1] == 1,
		ServoCollectOK: resp[2] == 1,
		ServoRewardOK:  resp[3] == 1,
		LastCheckedAt:  time.Now(),
	}

	s.mu.Lock()
	s.status.SensorHealth = health
	s.mu.Unlock()

	return health, nil
}

// SetStatusCallback 设置状态回调
func (s *SerialController) SetStatusCallback(callback StatusCallback) {
	s.statusCallback = callback
}

// SetLogRecorder 设置硬件日志记录器
func (s *SerialController) SetLogRecorder(rec *LogRecorder) {
	s.recorder = rec
}

// buildCommand 构建命令包
func (s *SerialController) buildCommand(cmd Command, data []byte) []byte {
	// 协议格式: [起始符(0xAA)] [命令] [数据长度] [数据...] [校验和] [结束符(0x55)]
	packet := []byte{0xAA, byte(cmd), byte(len(data))}
	packet = append(packet, data...)

	// 计算校验和
	checksum := byte(0)
	for _, b := range packet[1:] {
		checksum ^= b
	}

	packet = append(packet, checksum, 0x55)

	return packet
}

// sendCommand 发送命令。持有cmdMu，不与进行中的应答事务交错
func (s *SerialController) sendCommand(cmd []byte) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	port, err := s.activePort()
	if err != nil {
		return err
	}
	if err := s.writeWithRetry(port, cmd); err != nil {
		s.recordError(cmd, err)
		return err
	}
	s.recordSend(cmd)
	return nil
}

// sendCommandWithResponse 发送命令并读取应答。写入与读取是一次
// 完整事务，由cmdMu串行化，避免并发命令互相消费对方的应答。
func (s *SerialController) sendCommandWithResponse(cmd []byte, timeout time.Duration) ([]byte, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	port, err := s.activePort()
	if err != nil {
		return nil, err
	}
	if err := s.writeWithRetry(port, cmd); err != nil {
		s.recordError(cmd, err)
		return nil, err
	}

	data, err := s.readFrame(port, timeout)
	if err != nil {
		// 清空残留字节，避免下一条命令读到错位应答
		s.drainLine(port)
		s.recordError(cmd, err)
		return nil, err
	}
	return data, nil
}

// recordSend 落库下行命令。高频轮询类命令不落库，避免刷表
func (s *SerialController) recordSend(cmd []byte) {
	if s.recorder == nil || len(cmd) < 2 {
		return
	}
	c := Command(cmd[1])
	switch c {
	case CmdReadIR, CmdPollCard, CmdReadHealth, CmdHeartbeat:
		return
	}
	s.recorder.RecordSend(commandFunction(c), c, cmd)
}

func (s *SerialController) recordError(cmd []byte, err error) {
	if s.recorder == nil || len(cmd) < 2 {
		return
	}
	c := Command(cmd[1])
	s.recorder.RecordError(commandFunction(c), c, err.Error())
}

// commandFunction 命令所属的功能域，用于日志检索
func commandFunction(cmd Command) string {
	switch cmd {
	case CmdServoSet:
		return "servo"
	case CmdLEDSet:
		return "led"
	case CmdDisplay, CmdClearDisplay:
		return "display"
	case CmdReadIR:
		return "ir"
	case CmdPollCard:
		return "rfid"
	case CmdReadHealth:
		return "health"
	case CmdHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// activePort 取当前串口句柄快照，避免读写过程中裸引用s.port
func (s *SerialController) activePort() (*serial.Port, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.port == nil {
		return nil, errors.New("port not open")
	}
	return s.port, nil
}

func (s *SerialController) writeWithRetry(port *serial.Port, cmd []byte) error {
	retries := s.config.RetryTimes
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		if _, err := port.Write(cmd); err == nil {
			return nil
		}
		if i < retries-1 {
			time.Sleep(s.config.RetryInterval)
		}
	}

	s.mu.Lock()
	s.status.ErrorCount++
	s.mu.Unlock()
	return errors.New("send command failed after retries")
}

// readFrame 在超时时间内累积读取一帧完整应答。串口自身的ReadTimeout
// 使Read周期性返回，0字节读（io.EOF）按一次空轮询处理。
func (s *SerialController) readFrame(port *serial.Port, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	frame := make([]byte, 0, 64)
	chunk := make([]byte, 64)

	for {
		n, err := port.Read(chunk)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read response: %w", err)
		}
		frame = append(frame, chunk[:n]...)
		frame = discardToFrameStart(frame)

		data, ok, perr := parseResponseFrame(frame)
		if perr != nil {
			return nil, perr
		}
		if ok {
			return data, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("read timeout after %v", timeout)
		}
	}
}

// drainLine 读空串口缓冲，让收发回到帧边界
func (s *SerialController) drainLine(port *serial.Port) {
	chunk := make([]byte, 256)
	for i := 0; i < 4; i++ {
		n, err := port.Read(chunk)
		if n == 0 || err != nil {
			return
		}
	}
}

// discardToFrameStart 丢弃起始符之前的噪声字节
func discardToFrameStart(buf []byte) []byte {
	for i, b := range buf {
		if b == 0xAA {
			return buf[i:]
		}
	}
	return buf[:0]
}

// parseResponseFrame 解析应答帧。帧未收满时返回ok=false，
// 格式或校验错误返回error。
func parseResponseFrame(buf []byte) (data []byte, ok bool, err error) {
	if len(buf) < 3 {
		return nil, false, nil
	}
	if buf[0] != 0xAA {
		return nil, false, errors.New("invalid response format")
	}

	dataLen := int(buf[2])
	total := dataLen + 5
	if len(buf) < total {
		return nil, false, nil
	}
	if buf[total-1] != 0x55 {
		return nil, false, errors.New("invalid response format")
	}

	checksum := byte(0)
	for _, b := range buf[1 : total-2] {
		checksum ^= b
	}
	if checksum != buf[total-2] {
		return nil, false, errors.New("response checksum mismatch")
	}

	return buf[3 : 3+dataLen], true, nil
}

// heartbeatLoop 心跳循环
func (s *SerialController) heartbeatLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.IsConnected() {
				cmd := s.buildCommand(CmdHeartbeat, nil)
				if err := s.sendCommand(cmd); err != nil {
					s.logger.Warn("控制板心跳发送失败", zap.Error(err))
				}
			}
		}
	}
}

// healthMonitor 健康监控
func (s *SerialController) healthMonitor() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.IsConnected() {
				if _, err := s.GetSensorHealth(); err != nil {
					s.logger.Debug("读取传感器健康状态失败", zap.Error(err))
				}

				// 触发回调
				if s.statusCallback != nil {
					status, _ := s.GetStatus()
					s.statusCallback(status)
				}
			}
		}
	}
}

// padLine 将文本裁剪或补齐到显示列宽
func padLine(text string, cols int) string {
	runes := []rune(text)
	if len(runes) > cols {
		return string(runes[:cols])
	}
	return text + strings.Repeat(" ", cols-len(runes))
}
