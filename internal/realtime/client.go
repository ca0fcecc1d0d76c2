package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

const sendBufferSize = 64

// Client 后端实时事件通道客户端。
// 负责连接、注册、断线重连与消息分发，业务处理通过回调接入。
type Client struct {
	cfg     config.RealtimeConfig
	machine config.MachineConfig
	gate    *ScanGate
	logger  *zap.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	registered bool
	send       chan *Message

	onScanRequest func(req *ScanRequest)
	onScanCancel  func(requestID string)
	onRedemption  func(push *RedemptionPush)
	onCommand     func(cmd *Command)
}

// NewClient 创建实时通道客户端
func NewClient(cfg config.RealtimeConfig, machine config.MachineConfig) *Client {
	return &Client{
		cfg:     cfg,
		machine: machine,
		gate:    NewScanGate(cfg.ScanCooldown, cfg.CooldownSkipWindow),
		logger:  logger.GetModuleLogger("realtime"),
	}
}

// Gate 扫卡互斥门，交易流程读卡前后检查
func (c *Client) Gate() *ScanGate {
	return c.gate
}

// OnScanRequest 注册扫卡请求回调
func (c *Client) OnScanRequest(fn func(req *ScanRequest)) { c.onScanRequest = fn }

// OnScanCancel 注册扫卡取消回调
func (c *Client) OnScanCancel(fn func(requestID string)) { c.onScanCancel = fn }

// OnRedemption 注册兑换下发回调
func (c *Client) OnRedemption(fn func(push *RedemptionPush)) { c.onRedemption = fn }

// OnCommand 注册管理命令回调
func (c *Client) OnCommand(fn func(cmd *Command)) { c.onCommand = fn }

// IsConnected 是否已连接并完成注册
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.registered
}

// Run 维持连接的主循环：连接失败或断开后按指数退避重连，
// ctx取消后退出。
func (c *Client) Run(ctx context.Context) {
	delay := c.cfg.ReconnectInterval
	if delay <= 0 {
		delay = time.Second
	}

	for {
		if err := c.connect(ctx); err != nil {
			c.logger.Warn("实时通道连接失败",
				zap.String("url", c.cfg.URL),
				zap.Duration("retry_in", delay),
				zap.Error(err))
		} else {
			// serve返回即连接断开，重置退避
			c.serve(ctx)
			delay = c.cfg.ReconnectInterval
			if delay <= 0 {
				delay = time.Second
			}
		}

		select {
		case <-ctx.Done():
			c.close()
			c.logger.Info("实时通道退出")
			return
		case <-time.After(delay):
		}

		delay *= 2
		if max := c.cfg.MaxReconnectDelay; max > 0 && delay > max {
			delay = max
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrWebSocketConnect, "实时通道连接失败")
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.registered = false
	c.send = make(chan *Message, sendBufferSize)
	c.mu.Unlock()

	c.logger.Info("实时通道已连接", zap.String("url", c.cfg.URL))

	// 连接建立后立刻注册
	return c.Emit(TypeRegister, &RegisterPayload{
		MachineID: c.machine.ID,
		Secret:    c.machine.Secret,
	})
}

// serve 读写循环，任一侧失败即返回
func (c *Client) serve(ctx context.Context) {
	c.mu.RLock()
	conn := c.conn
	send := c.send
	c.mu.RUnlock()

	done := make(chan struct{})
	go c.writePump(ctx, conn, send, done)
	c.readPump(conn)
	close(done)
	c.close()
}

func (c *Client) readPump(conn *websocket.Conn) {
	pongWait := c.cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("实时通道读取错误", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("实时消息格式错误", zap.ByteString("raw", raw))
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send chan *Message, done chan struct{}) {
	pingInterval := c.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	writeWait := c.cfg.WriteTimeout
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.Warn("实时消息发送失败", zap.Error(err))
				return
			}
			logger.LogWebSocketMessage("send", msg.Type, nil)
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(msg *Message) {
	logger.LogWebSocketMessage("receive", msg.Type, nil)

	switch msg.Type {
	case TypeRegisterSuccess:
		c.mu.Lock()
		c.registered = true
		c.mu.Unlock()
		c.logger.Info("机器注册成功", zap.String("machine_id", c.machine.ID))

	case TypeRegisterError:
		c.mu.Lock()
		c.registered = false
		c.mu.Unlock()
		c.logger.Error("机器注册被拒绝", zap.ByteString("data", msg.Data))

	case TypeScanRequest:
		var req ScanRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.logger.Warn("扫卡请求格式错误", zap.Error(err))
			return
		}
		if !c.gate.Begin(req.RequestID) {
			c.logger.Warn("已有进行中的扫卡请求，忽略", zap.String("request_id", req.RequestID))
			return
		}
		if c.onScanRequest != nil {
			go c.onScanRequest(&req)
		}

	case TypeScanCancel:
		var cancel ScanCancel
		if err := json.Unmarshal(msg.Data, &cancel); err != nil {
			return
		}
		c.gate.Cancel(cancel.RequestID)
		if c.onScanCancel != nil {
			c.onScanCancel(cancel.RequestID)
		}
		c.logger.Info("扫卡请求已取消", zap.String("request_id", cancel.RequestID))

	case TypeRedemption:
		var push RedemptionPush
		if err := json.Unmarshal(msg.Data, &push); err != nil {
			c.logger.Warn("兑换下发格式错误", zap.Error(err))
			return
		}
		if c.onRedemption != nil {
			go c.onRedemption(&push)
		}

	case TypeCommand:
		var cmd Command
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			return
		}
		if c.onCommand != nil {
			go c.onCommand(&cmd)
		}

	default:
		c.logger.Debug("未处理的消息类型", zap.String("type", msg.Type))
	}
}

// Emit 发送消息。未连接或缓冲区满时返回错误。
func (c *Client) Emit(msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrMessageFormat, "消息序列化失败")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.send == nil {
		return apperrors.New(apperrors.ErrWebSocketClosed, "实时通道未连接")
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return apperrors.New(apperrors.ErrWebSocketSend, "发送缓冲区已满")
	}
}

// SendScanResult 回传扫卡结果，成功时启动读卡冷却
func (c *Client) SendScanResult(result *ScanResult) error {
	c.gate.Finish(result.RequestID, result.Success)
	return c.Emit(TypeScanResult, result)
}

// SendSensorData 上报传感器数据
func (c *Client) SendSensorData(sensorType string, value any) error {
	return c.Emit(TypeSensorData, &SensorData{
		MachineID:  c.machine.ID,
		SensorType: sensorType,
		Value:      value,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// SendTransactionUpdate 上报交易状态变化
func (c *Client) SendTransactionUpdate(transactionID, status string, details map[string]any) error {
	return c.Emit(TypeTransactionUpdate, &TransactionUpdate{
		MachineID:     c.machine.ID,
		TransactionID: transactionID,
		Status:        status,
		Details:       details,
		Timestamp:     time.Now().Format(time.RFC3339),
	})
}

// SendMachineStatus 上报机器状态
func (c *Client) SendMachineStatus(status string, sensorHealth map[string]string, paperStock int) error {
	return c.Emit(TypeMachineStatus, &MachineStatus{
		MachineID:    c.machine.ID,
		Status:       status,
		SensorHealth: sensorHealth,
		PaperStock:   paperStock,
		Timestamp:    time.Now().Format(time.RFC3339),
	})
}

// SendRedemptionError 上报兑换出纸失败
func (c *Client) SendRedemptionError(redemptionID string, errMsg string) error {
	return c.Emit(TypeRedemptionError, &RedemptionError{
		RedemptionID: redemptionID,
		Error:        errMsg,
	})
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.registered = false
}
