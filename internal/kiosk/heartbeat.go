package kiosk

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/backend"
	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// HeartbeatSender 心跳上报后端接口
type HeartbeatSender interface {
	SendHeartbeat(ctx context.Context, hb *backend.Heartbeat) error
}

// Heartbeat 周期性向后端上报设备状态与库存
type Heartbeat struct {
	cfg        config.HeartbeatConfig
	client     HeartbeatSender
	controller hardware.Controller
	stock      *Stock
	logger     *zap.Logger
}

// NewHeartbeat 创建心跳上报任务
func NewHeartbeat(cfg config.HeartbeatConfig, client HeartbeatSender, controller hardware.Controller, stock *Stock) *Heartbeat {
	return &Heartbeat{
		cfg:        cfg,
		client:     client,
		controller: controller,
		stock:      stock,
		logger:     logger.GetModuleLogger("heartbeat"),
	}
}

// Run 心跳循环，启动时先上报一次
func (h *Heartbeat) Run(ctx context.Context) {
	interval := h.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	h.logger.Info("心跳上报启动", zap.Duration("interval", interval))
	h.beat(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("心跳上报退出")
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	status := "online"
	var healthMap map[string]string

	health, err := h.controller.GetSensorHealth()
	if err != nil {
		h.logger.Warn("传感器健康查询失败", zap.Error(err))
		status = "degraded"
	} else {
		healthMap = sensorHealthMap(health)
		if !health.Healthy() {
			status = "degraded"
		}
	}

	hb := &backend.Heartbeat{
		Status:        status,
		PaperStock:    int(h.stock.Current()),
		PaperCapacity: int(h.stock.Capacity()),
		SensorHealth:  healthMap,
	}
	if err := h.client.SendHeartbeat(ctx, hb); err != nil {
		h.logger.Debug("心跳上报失败", zap.Error(err))
		return
	}
	h.logger.Debug("心跳上报成功",
		zap.String("status", status),
		zap.Int("paper_stock", hb.PaperStock))
}

// sensorHealthMap 转换为后端心跳接口的字段格式
func sensorHealthMap(h *hardware.SensorHealth) map[string]string {
	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "error"
	}
	return map[string]string{
		"ir_sensor":     mark(h.IRSensorOK),
		"card_reader":   mark(h.CardReaderOK),
		"servo_collect": mark(h.ServoCollectOK),
		"servo_reward":  mark(h.ServoRewardOK),
	}
}
