package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"go.uber.org/zap"
)

// Manager 硬件管理器
//
// 根据配置选择真实串口控制板或模拟控制板，负责连接重试与
// 断线后的自动重连。
type Manager struct {
	mu         sync.RWMutex
	cfg        *config.HardwareConfig
	controller Controller
	mockMode   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	recorder *LogRecorder
	logger   *zap.Logger
}

// NewManager 创建硬件管理器
func NewManager(cfg *config.HardwareConfig) *Manager {
	m := &Manager{
		cfg:      cfg,
		mockMode: cfg.MockMode,
		logger:   logger.GetLogger(),
	}

	if cfg.MockMode {
		m.controller = NewMockController()
	} else {
		m.controller = NewSerialController(&SerialConfig{
			Port:          cfg.Port,
			BaudRate:      cfg.BaudRate,
			DataBits:      byte(cfg.DataBits),
			StopBits:      byte(cfg.StopBits),
			Parity:        cfg.Parity,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			RetryTimes:    cfg.RetryTimes,
			RetryInterval: cfg.RetryInterval,
			DisplayCols:   cfg.DisplayCols,
		})
	}

	return m
}

// Start 连接控制板并启动断线监控
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.connectWithRetry(); err != nil {
		return err
	}

	m.wg.Add(1)
	go m.reconnectLoop()

	return nil
}

// Stop 断开控制板
func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return m.controller.Disconnect()
}

// Controller 获取控制板实例
func (m *Manager) Controller() Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controller
}

// IsMockMode 是否为模拟模式
func (m *Manager) IsMockMode() bool {
	return m.mockMode
}

// SetLogRecorder 设置硬件日志记录器，命令与连接事件落库
func (m *Manager) SetLogRecorder(rec *LogRecorder) {
	m.recorder = rec
	if sc, ok := m.controller.(*SerialController); ok {
		sc.SetLogRecorder(rec)
	}
}

// connectWithRetry 带重试的连接
func (m *Manager) connectWithRetry() error {
	retries := m.cfg.RetryTimes
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		if err := m.controller.Connect(); err != nil {
			lastErr = err
			m.logger.Warn("控制板连接失败，等待重试",
				zap.Int("attempt", i+1),
				zap.Error(err))

			select {
			case <-m.ctx.Done():
				return apperrors.New(apperrors.ErrCanceled)
			case <-time.After(m.cfg.RetryInterval):
			}
			continue
		}
		return nil
	}

	return apperrors.Wrap(lastErr, apperrors.ErrSerialPortOpen)
}

// reconnectLoop 断线自动重连
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if m.controller.IsConnected() {
				continue
			}

			m.logger.Warn("检测到控制板断开，尝试重连")
			if err := m.controller.Connect(); err != nil {
				m.logger.Error("控制板重连失败", zap.Error(err))
				if m.recorder != nil {
					m.recorder.RecordEvent(models.HardwareLogLevelError, "connection", "重连失败: "+err.Error())
				}
			} else {
				m.logger.Info("控制板重连成功")
				if m.recorder != nil {
					m.recorder.RecordEvent(models.HardwareLogLevelInfo, "connection", "重连成功")
				}
			}
		}
	}
}
