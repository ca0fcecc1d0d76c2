package detector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// 连续读取失败超过该次数视为传感器故障
const maxConsecutiveReadErrors = 10

// PaperSensor 红外对射传感器读取接口
type PaperSensor interface {
	PaperPresent() (bool, error)
}

// Detector 纸张计数检测器。每次投放开启一个检测会话，
// 以固定周期轮询红外传感器并驱动会话状态机。
type Detector struct {
	cfg     config.DetectorConfig
	sensor  PaperSensor
	logger  *zap.Logger
	onCount func(count int)
}

// NewDetector 创建检测器
func NewDetector(cfg config.DetectorConfig, sensor PaperSensor) *Detector {
	return &Detector{
		cfg:    cfg,
		sensor: sensor,
		logger: logger.GetModuleLogger("sensor"),
	}
}

// OnCount 注册计数回调，每确认一张纸触发一次
func (d *Detector) OnCount(fn func(count int)) {
	d.onCount = fn
}

// DetectUnits 执行一次完整的检测会话：
// 先等待光路稳定畅通，再逐张计数，结束后等待通道清空。
// 会话的结束原因（正常/超时/达到上限）在Result中返回，
// 仅在被取消或传感器持续故障时返回错误。
func (d *Detector) DetectUnits(ctx context.Context) (*Result, error) {
	if err := d.waitPreroll(ctx); err != nil {
		return nil, err
	}

	sess := newSession(
		d.cfg.DebounceDuration,
		d.cfg.InitialTimeout,
		d.cfg.InactivityTimeout,
		d.cfg.MaxUnits,
		time.Now(),
	)

	d.logger.Info("检测会话开始",
		zap.Duration("initial_timeout", d.cfg.InitialTimeout),
		zap.Int("max_units", d.cfg.MaxUnits))

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	readErrors := 0
	for !sess.done {
		select {
		case <-ctx.Done():
			d.logger.Info("检测会话被取消", zap.Int("count", sess.count))
			return nil, apperrors.New(apperrors.ErrCanceled, "检测会话被取消")
		case <-ticker.C:
		}

		present, err := d.sensor.PaperPresent()
		if err != nil {
			readErrors++
			if readErrors >= maxConsecutiveReadErrors {
				d.logger.Error("红外传感器持续读取失败", zap.Error(err), zap.Int("errors", readErrors))
				return nil, apperrors.Wrap(err, apperrors.ErrSensorFault, "红外传感器读取失败")
			}
			continue
		}
		readErrors = 0

		if sess.step(present, time.Now()) {
			logger.LogSensorEvent("ir", "counted", sess.count)
			if d.onCount != nil {
				d.onCount(sess.count)
			}
		}
	}

	result := sess.result(time.Now())
	d.logger.Info("检测会话结束",
		zap.Int("count", result.Count),
		zap.String("reason", string(result.Reason)),
		zap.Duration("duration", result.Duration))

	if err := d.waitClear(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// waitPreroll 会话前置检查：要求最近5次采样中至少4次光路畅通，
// 避免上一笔残留纸张或抖动直接进入计数。超过等待上限则继续执行。
func (d *Detector) waitPreroll(ctx context.Context) error {
	deadline := time.Now().Add(d.cfg.PrerollWait)
	window := make([]bool, 0, 5)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return apperrors.New(apperrors.ErrCanceled, "检测会话被取消")
		case <-ticker.C:
		}

		present, err := d.sensor.PaperPresent()
		if err != nil {
			continue
		}
		window = append(window, present)
		if len(window) > 5 {
			window = window[1:]
		}
		if len(window) == 5 {
			clear := 0
			for _, p := range window {
				if !p {
					clear++
				}
			}
			if clear >= 4 {
				return nil
			}
		}
		if time.Now().After(deadline) {
			d.logger.Warn("光路未稳定畅通，超时后继续检测")
			return nil
		}
	}
}

// waitClear 会话结束后等待通道清空，最长等待ClearWait。
// 到时仍有遮挡则放弃等待，由后续会话的前置检查兜底。
func (d *Detector) waitClear(ctx context.Context) error {
	deadline := time.Now().Add(d.cfg.ClearWait)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return apperrors.New(apperrors.ErrCanceled, "检测会话被取消")
		case <-ticker.C:
		}

		present, err := d.sensor.PaperPresent()
		if err == nil && !present {
			return nil
		}
	}
	d.logger.Warn("通道清空等待超时")
	return nil
}
