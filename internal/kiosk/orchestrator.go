package kiosk

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/detector"
	"github.com/wfunc/recycle-kiosk/internal/gateway"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/realtime"
)

// State 交易主流程状态
type State string

const (
	StateIdle            State = "idle"
	StateWaitingIdentity State = "waiting_identity"
	StateVerifying       State = "verifying"
	StateWaitingUnits    State = "waiting_units"
	StateCounting        State = "counting"
	StateSubmitting      State = "submitting"
	StateSuccess         State = "success"
	StateRejected        State = "rejected"
	StateError           State = "error"
)

// 主循环两次交易之间的间隔
const loopIdleDelay = 200 * time.Millisecond

// Verifier 身份验证与交易提交接口
type Verifier interface {
	Verify(ctx context.Context, cardUID string) (*gateway.VerifyOutcome, error)
	Submit(ctx context.Context, cardUID string, userID string, paperCount int) (*gateway.SubmitOutcome, error)
}

// UnitCounter 纸张计数接口
type UnitCounter interface {
	OnCount(fn func(count int))
	DetectUnits(ctx context.Context) (*detector.Result, error)
}

// Telemetry 实时遥测上报接口，未接入实时通道时可为nil
type Telemetry interface {
	IsConnected() bool
	SendSensorData(sensorType string, value any) error
	SendTransactionUpdate(transactionID string, status string, details map[string]any) error
}

// Orchestrator 交易主流程编排。单控制循环驱动状态机：
//
//	idle → waiting_identity → verifying → waiting_units →
//	counting → submitting → success/rejected/error → idle
//
// 后台扫卡请求通过ScanGate抢占读卡：进行中的扫卡、冷却期
// 和冷却刚结束的窗口内，正常交易不读卡/丢弃已读到的卡。
type Orchestrator struct {
	cfg       config.IdentityConfig
	controller hardware.Controller
	display   *Display
	gate      *realtime.ScanGate
	verifier  Verifier
	counter   UnitCounter
	telemetry Telemetry
	logger    *zap.Logger

	mu    sync.RWMutex
	state State
}

// NewOrchestrator 创建交易编排器
func NewOrchestrator(
	cfg config.IdentityConfig,
	controller hardware.Controller,
	gate *realtime.ScanGate,
	verifier Verifier,
	counter UnitCounter,
	telemetry Telemetry,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		controller: controller,
		display:    NewDisplay(controller),
		gate:       gate,
		verifier:   verifier,
		counter:    counter,
		telemetry:  telemetry,
		logger:     logger.GetModuleLogger("transaction"),
		state:      StateIdle,
	}
}

// State 当前状态，维护接口查询用
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("状态切换",
		zap.String("from", string(prev)),
		zap.String("to", string(s)))
}

// Run 交易主循环。每轮执行一次完整交易流程，
// 任何异常都收敛到error状态后回到idle，循环本身永不退出
// （除非ctx取消）。
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("交易主循环启动")
	for {
		select {
		case <-ctx.Done():
			o.setState(StateIdle)
			o.logger.Info("交易主循环退出")
			return
		default:
		}

		o.runOnce(ctx)

		select {
		case <-ctx.Done():
		case <-time.After(loopIdleDelay):
		}
	}
}

// runOnce 执行一次交易流程，panic收敛为error状态
func (o *Orchestrator) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, debug.Stack())
			o.setState(StateError)
			o.display.Error()
			o.dwell(ctx)
		}
		o.setState(StateIdle)
	}()

	// 扫卡抢占检查：进行中或冷却期内不进入读卡
	if o.gate.Active() || o.gate.ShouldSkipCard() {
		return
	}

	o.setState(StateWaitingIdentity)
	o.display.Welcome()

	card, ok := o.waitForCard(ctx)
	if !ok {
		return
	}

	// 读卡期间扫卡请求可能已激活，或冷却刚结束，丢弃这张卡
	if o.gate.ShouldSkipCard() {
		o.logger.Info("扫卡互斥生效，丢弃已读到的卡",
			zap.String("card_uid", card.UID))
		return
	}

	o.processTransaction(ctx, card)
}

// waitForCard 轮询等待卡片。扫卡请求激活、超时或ctx取消时
// 返回false。读卡器故障只记日志，下一轮继续。
func (o *Orchestrator) waitForCard(ctx context.Context) (*hardware.CardEvent, bool) {
	var deadline time.Time
	if o.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(o.cfg.ReadTimeout)
	}

	interval := o.cfg.CheckInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}

		// 扫卡请求抢占读卡
		if o.gate.Active() {
			o.logger.Debug("扫卡请求激活，中断正常读卡")
			return nil, false
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, false
		}

		card, found, err := o.controller.PollCard()
		if err != nil {
			o.logger.Warn("读卡器查询失败", zap.Error(err))
			continue
		}
		if found {
			logger.LogSensorEvent("rfid", "detected", 0)
			return card, true
		}
	}
}

func (o *Orchestrator) processTransaction(ctx context.Context, card *hardware.CardEvent) {
	transactionID := newTransactionID(card.UID)
	o.emitUpdate(transactionID, "started", map[string]any{"rfidTag": card.UID})

	// 身份验证
	o.setState(StateVerifying)
	o.display.CardDetected()

	outcome, err := o.verifier.Verify(ctx, card.UID)
	if err != nil {
		o.logger.Error("身份验证异常", zap.Error(err))
		o.setState(StateError)
		o.display.Error()
		o.emitUpdate(transactionID, "error", map[string]any{"stage": "verify"})
		o.dwell(ctx)
		return
	}
	if !outcome.Valid {
		o.setState(StateRejected)
		o.display.NotRegistered()
		o.emitUpdate(transactionID, "rejected", map[string]any{
			"reason": outcome.Reason,
			"stage":  "verify",
		})
		o.dwell(ctx)
		return
	}

	// 等待投纸并逐张计数
	o.setState(StateWaitingUnits)
	o.display.UserVerified(outcome.UserName)

	o.setState(StateCounting)
	o.counter.OnCount(func(count int) {
		o.display.Counting(count)
		o.emitUpdate(transactionID, "counting", map[string]any{"paperCount": count})
	})
	result, err := o.counter.DetectUnits(ctx)
	if err != nil {
		o.logger.Error("纸张检测异常", zap.Error(err))
		o.setState(StateError)
		o.display.Error()
		o.emitUpdate(transactionID, "error", map[string]any{"stage": "counting"})
		o.dwell(ctx)
		return
	}
	if !result.Accepted() {
		// 未投纸超时不算失败交易，静默回到待机
		o.logger.Info("未检测到纸张，交易结束",
			zap.String("reason", string(result.Reason)))
		o.emitUpdate(transactionID, "abandoned", map[string]any{"reason": string(result.Reason)})
		return
	}

	// 提交交易
	o.setState(StateSubmitting)
	submit, err := o.verifier.Submit(ctx, card.UID, outcome.UserID, result.Count)
	if err != nil {
		o.logger.Error("交易提交异常", zap.Error(err))
		o.setState(StateError)
		o.display.Error()
		o.emitUpdate(transactionID, "error", map[string]any{"stage": "submit"})
		o.dwell(ctx)
		return
	}
	if !submit.Accepted {
		o.setState(StateRejected)
		o.display.Rejected()
		o.emitUpdate(transactionID, "rejected", map[string]any{
			"reason": submit.Reason,
			"stage":  "submit",
		})
		o.dwell(ctx)
		return
	}

	o.setState(StateSuccess)
	if submit.Offline {
		o.display.OfflineSuccess(submit.PointsAwarded, submit.TotalPoints)
	} else {
		o.display.Success(submit.PointsAwarded, submit.TotalPoints)
	}
	logger.LogTransactionEvent("completed", submit.TransactionID, map[string]interface{}{
		"card_uid":    card.UID,
		"paper_count": result.Count,
		"points":      submit.PointsAwarded,
		"offline":     submit.Offline,
	})
	o.emitUpdate(transactionID, "completed", map[string]any{
		"paperCount":    result.Count,
		"pointsAwarded": submit.PointsAwarded,
		"totalPoints":   submit.TotalPoints,
		"offline":       submit.Offline,
	})
	o.dwell(ctx)
}

func (o *Orchestrator) emitUpdate(transactionID, status string, details map[string]any) {
	if o.telemetry == nil || !o.telemetry.IsConnected() {
		return
	}
	if err := o.telemetry.SendTransactionUpdate(transactionID, status, details); err != nil {
		o.logger.Debug("交易状态上报失败", zap.Error(err))
	}
}

// dwell 终态展示停留
func (o *Orchestrator) dwell(ctx context.Context) {
	d := o.cfg.ResultDwell
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func newTransactionID(cardUID string) string {
	suffix := cardUID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("txn_%d_%s", time.Now().Unix(), suffix)
}
