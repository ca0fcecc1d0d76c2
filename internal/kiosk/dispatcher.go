package kiosk

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/backend"
	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"github.com/wfunc/recycle-kiosk/internal/realtime"
	"github.com/wfunc/recycle-kiosk/internal/repository"
)

// DispenseSequencer 出纸执行接口
type DispenseSequencer interface {
	Busy() bool
	RunCycles(ctx context.Context, source string, cycles int) error
}

// RedemptionBackend 兑换任务后端接口
type RedemptionBackend interface {
	PendingRedemptions(ctx context.Context) ([]backend.RedemptionItem, error)
	MarkRedemptionDispensed(ctx context.Context, redemptionID string) error
}

// RedemptionNotifier 兑换失败实时上报接口，可为nil
type RedemptionNotifier interface {
	IsConnected() bool
	SendRedemptionError(redemptionID string, errMsg string) error
}

// Dispatcher 兑换出纸调度。任务来源有两个：后台轮询拉取
// 和实时通道推送。同一兑换ID在两条路径上可能同时到达，
// 以进行中集合做互斥，保证每个兑换只出纸一次。
type Dispatcher struct {
	cfg       config.RedeemConfig
	client    RedemptionBackend
	sequencer DispenseSequencer
	display   *Display
	stock     *Stock
	repo      repository.RedemptionRepository
	notifier  RedemptionNotifier
	logger    *zap.Logger

	mu         sync.Mutex
	processing map[string]struct{}
}

// NewDispatcher 创建兑换调度器
func NewDispatcher(
	cfg config.RedeemConfig,
	client RedemptionBackend,
	sequencer DispenseSequencer,
	display *Display,
	stock *Stock,
	repo repository.RedemptionRepository,
	notifier RedemptionNotifier,
) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		client:     client,
		sequencer:  sequencer,
		display:    display,
		stock:      stock,
		repo:       repo,
		notifier:   notifier,
		logger:     logger.GetModuleLogger("redemption"),
		processing: make(map[string]struct{}),
	}
}

// Run 轮询后端待出纸队列
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("兑换轮询启动", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("兑换轮询退出")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	items, err := d.client.PendingRedemptions(ctx)
	if err != nil {
		d.logger.Debug("拉取待出纸队列失败", zap.Error(err))
		return
	}
	for _, item := range items {
		d.Dispatch(ctx, &realtime.RedemptionPush{
			RedemptionID: item.RedemptionID,
			RewardName:   item.RewardName,
			CardUID:      item.CardUID,
			UserID:       item.UserID,
		}, models.RedemptionSourcePoll)

		if d.cfg.ItemInterval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.cfg.ItemInterval):
			}
		}
	}
}

// HandlePush 实时推送入口
func (d *Dispatcher) HandlePush(ctx context.Context, push *realtime.RedemptionPush) {
	d.Dispatch(ctx, push, models.RedemptionSourceRealtime)
}

// Dispatch 执行一个兑换出纸任务。同一兑换ID并发到达时
// 只有第一个进入执行，其余直接返回。
func (d *Dispatcher) Dispatch(ctx context.Context, push *realtime.RedemptionPush, source string) {
	if push == nil || push.RedemptionID == "" {
		return
	}
	if !d.begin(push.RedemptionID) {
		d.logger.Debug("兑换已在处理中，跳过",
			zap.String("redemption_id", push.RedemptionID))
		return
	}
	defer d.finish(push.RedemptionID)

	d.process(ctx, push, source)
}

func (d *Dispatcher) begin(redemptionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.processing[redemptionID]; ok {
		return false
	}
	d.processing[redemptionID] = struct{}{}
	return true
}

func (d *Dispatcher) finish(redemptionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.processing, redemptionID)
}

func (d *Dispatcher) process(ctx context.Context, push *realtime.RedemptionPush, source string) {
	cycles := models.CyclesForReward(push.RewardName)
	if cycles <= 0 {
		cycles = d.cfg.DefaultCycles
	}

	// 轮询可能重复下发同一个任务：本地已出纸的直接忽略，
	// 之前失败的复用原记录重试
	existing, err := d.repo.FindByRedemptionID(ctx, push.RedemptionID)
	if err == nil {
		if existing.Status == models.RedemptionStatusDispensed {
			d.logger.Debug("兑换已出纸，忽略重复下发",
				zap.String("redemption_id", push.RedemptionID))
			return
		}
		existing.Status = models.RedemptionStatusProcessing
		existing.Error = ""
		if err := d.repo.Update(ctx, existing); err != nil {
			d.logger.Warn("兑换记录更新失败", zap.Error(err),
				zap.String("redemption_id", push.RedemptionID))
		}
	} else {
		record := &models.Redemption{
			RedemptionID: push.RedemptionID,
			CardUID:      push.CardUID,
			UserID:       push.UserID.String(),
			RewardName:   push.RewardName,
			Cycles:       cycles,
			Source:       source,
			Status:       models.RedemptionStatusProcessing,
		}
		if err := d.repo.Create(ctx, record); err != nil {
			d.logger.Warn("兑换记录写入失败", zap.Error(err),
				zap.String("redemption_id", push.RedemptionID))
		}
	}

	d.logger.Info("开始兑换出纸",
		zap.String("redemption_id", push.RedemptionID),
		zap.String("reward", push.RewardName),
		zap.Int("cycles", cycles),
		zap.String("source", source))

	d.display.Dispensing(cycles)
	if err := d.sequencer.RunCycles(ctx, "redemption", cycles); err != nil {
		d.fail(ctx, push.RedemptionID, err)
		return
	}
	d.stock.Consume(int64(cycles))
	d.display.DispenseComplete(cycles)
	d.dwell(ctx)

	if err := d.repo.MarkDispensed(ctx, push.RedemptionID); err != nil {
		d.logger.Warn("兑换状态更新失败", zap.Error(err),
			zap.String("redemption_id", push.RedemptionID))
	}

	// 出纸已完成，回执失败只影响后端状态，下轮轮询会重试；
	// 本地状态以已出纸为准，靠dispensed记录防止重复出纸
	if err := d.client.MarkRedemptionDispensed(ctx, push.RedemptionID); err != nil {
		d.logger.Warn("兑换回执上报失败", zap.Error(err),
			zap.String("redemption_id", push.RedemptionID))
	}

	logger.LogTransactionEvent("redemption_dispensed", push.RedemptionID, map[string]interface{}{
		"reward": push.RewardName,
		"cycles": cycles,
		"source": source,
	})
}

func (d *Dispatcher) fail(ctx context.Context, redemptionID string, cause error) {
	d.logger.Error("兑换出纸失败", zap.Error(cause),
		zap.String("redemption_id", redemptionID))
	d.display.Error()
	d.dwell(ctx)

	if err := d.repo.MarkFailed(ctx, redemptionID, cause.Error()); err != nil {
		d.logger.Warn("兑换失败状态写入失败", zap.Error(err))
	}
	if d.notifier != nil && d.notifier.IsConnected() {
		if err := d.notifier.SendRedemptionError(redemptionID, cause.Error()); err != nil {
			d.logger.Debug("兑换失败上报失败", zap.Error(err))
		}
	}
}

func (d *Dispatcher) dwell(ctx context.Context) {
	if d.cfg.DisplayDwell <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.cfg.DisplayDwell):
	}
}
