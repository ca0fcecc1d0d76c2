package kiosk

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/realtime"
)

// 注册扫卡默认超时
const defaultScanTimeout = 30 * time.Second

// ScanResponder 扫卡结果回传接口
type ScanResponder interface {
	SendScanResult(result *realtime.ScanResult) error
}

// Scanner 处理管理端下发的注册扫卡请求。请求期间正常交易
// 读卡被ScanGate抢占，读到的卡通过实时通道回传管理端。
type Scanner struct {
	cfg        config.IdentityConfig
	controller hardware.Controller
	display    *Display
	gate       *realtime.ScanGate
	responder  ScanResponder
	logger     *zap.Logger
}

// NewScanner 创建注册扫卡处理器
func NewScanner(cfg config.IdentityConfig, controller hardware.Controller, display *Display, gate *realtime.ScanGate, responder ScanResponder) *Scanner {
	return &Scanner{
		cfg:        cfg,
		controller: controller,
		display:    display,
		gate:       gate,
		responder:  responder,
		logger:     logger.GetModuleLogger("realtime"),
	}
}

// HandleRequest 执行一次扫卡。调用方（实时客户端的分发协程）
// 已通过ScanGate.Begin占位，这里负责扫卡、回传结果并Finish。
func (s *Scanner) HandleRequest(ctx context.Context, req *realtime.ScanRequest) {
	timeout := defaultScanTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	s.logger.Info("开始注册扫卡",
		zap.String("request_id", req.RequestID),
		zap.Duration("timeout", timeout))
	s.display.Scanning()

	card, ok := s.pollCard(ctx, req.RequestID, timeout)

	result := &realtime.ScanResult{
		RequestID: req.RequestID,
		Success:   ok,
	}
	if ok {
		result.Tag = card.UID
		s.display.ScanSuccess()
		logger.LogSensorEvent("rfid", "scan_captured", 0)
	} else {
		result.Message = "扫卡超时"
		s.display.ScanFailed()
		// 取消的请求ScanGate已释放，这里Finish是空操作
	}

	if err := s.responder.SendScanResult(result); err != nil {
		s.logger.Warn("扫卡结果回传失败", zap.Error(err),
			zap.String("request_id", req.RequestID))
	}

	s.dwell(ctx)
	s.display.Welcome()
}

// pollCard 在超时内轮询读卡器。扫卡请求被取消（ScanGate
// 不再活跃）时立即返回。
func (s *Scanner) pollCard(ctx context.Context, requestID string, timeout time.Duration) (*hardware.CardEvent, bool) {
	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}

		if !s.gate.Active() {
			s.logger.Info("扫卡请求已取消", zap.String("request_id", requestID))
			return nil, false
		}
		if time.Now().After(deadline) {
			return nil, false
		}

		card, found, err := s.controller.PollCard()
		if err != nil {
			s.logger.Warn("扫卡读卡失败", zap.Error(err))
			continue
		}
		if found {
			return card, true
		}
	}
}

func (s *Scanner) dwell(ctx context.Context) {
	if s.cfg.ResultDwell <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.cfg.ResultDwell):
	}
}
