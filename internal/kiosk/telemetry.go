package kiosk

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// StatusStreamer 实时状态流接口
type StatusStreamer interface {
	IsConnected() bool
	SendSensorData(sensorType string, value any) error
	SendMachineStatus(status string, sensorHealth map[string]string, paperStock int) error
}

// StatusStream 周期性通过实时通道推送传感器与库存状态，
// 供管理端实时监控。未连接时静默跳过。
type StatusStream struct {
	interval   time.Duration
	streamer   StatusStreamer
	controller hardware.Controller
	stock      *Stock
	logger     *zap.Logger
}

// NewStatusStream 创建实时状态流任务
func NewStatusStream(cfg config.RealtimeConfig, streamer StatusStreamer, controller hardware.Controller, stock *Stock) *StatusStream {
	interval := cfg.StreamInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &StatusStream{
		interval:   interval,
		streamer:   streamer,
		controller: controller,
		stock:      stock,
		logger:     logger.GetModuleLogger("realtime"),
	}
}

// Run 状态流循环
func (s *StatusStream) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("实时状态流启动", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("实时状态流退出")
			return
		case <-ticker.C:
			s.push()
		}
	}
}

func (s *StatusStream) push() {
	if !s.streamer.IsConnected() {
		return
	}

	present, err := s.controller.PaperPresent()
	if err == nil {
		if err := s.streamer.SendSensorData("ir", map[string]any{
			"paperPresent": present,
		}); err != nil {
			s.logger.Debug("传感器数据推送失败", zap.Error(err))
		}
	}

	status := "online"
	var healthMap map[string]string
	if health, err := s.controller.GetSensorHealth(); err == nil {
		healthMap = sensorHealthMap(health)
		if !health.Healthy() {
			status = "degraded"
		}
	}
	if err := s.streamer.SendMachineStatus(status, healthMap, int(s.stock.Current())); err != nil {
		s.logger.Debug("设备状态推送失败", zap.Error(err))
	}
}
