package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/backend"
	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"github.com/wfunc/recycle-kiosk/internal/repository"
)

// 批内逐笔提交之间的间隔，避免瞬间打满后端
const interItemDelay = 500 * time.Millisecond

// Report 一次同步的执行结果
type Report struct {
	Online      bool          `json:"online"`
	SyncedCount int           `json:"synced_count"`
	FailedCount int           `json:"failed_count"`
	Duration    time.Duration `json:"duration"`
}

// Syncer 离线交易同步任务。网络恢复后把排队中的离线交易
// 按发生顺序批量补传到后端，并记录每次同步的审计日志。
type Syncer struct {
	client  *backend.Client
	monitor *backend.Monitor
	txns    repository.PendingTransactionRepository
	logs    repository.SyncLogRepository
	cfg     config.SyncConfig
	logger  *zap.Logger

	itemDelay time.Duration
	mu        sync.Mutex // 同一时刻只允许一次同步
}

// NewSyncer 创建同步任务
func NewSyncer(
	client *backend.Client,
	monitor *backend.Monitor,
	txns repository.PendingTransactionRepository,
	logs repository.SyncLogRepository,
	cfg config.SyncConfig,
) *Syncer {
	return &Syncer{
		client:    client,
		monitor:   monitor,
		txns:      txns,
		logs:      logs,
		cfg:       cfg,
		logger:    logger.GetModuleLogger("sync"),
		itemDelay: interItemDelay,
	}
}

// SyncPending 补传排队中的离线交易。trigger标识触发来源
// （startup/interval/manual），写入同步审计日志。
func (s *Syncer) SyncPending(ctx context.Context, trigger string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	report := &Report{}

	if !s.monitor.Check(ctx) {
		count, _ := s.txns.CountPending(ctx)
		if count > 0 {
			s.logger.Info("离线状态，交易继续排队", zap.Int64("pending", count))
		}
		report.Duration = time.Since(start)
		return report, nil
	}
	report.Online = true

	limit := s.cfg.BatchLimit
	if limit <= 0 {
		limit = 50
	}
	pending, err := s.txns.FindPending(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取排队交易失败")
	}
	if len(pending) == 0 {
		report.Duration = time.Since(start)
		return report, nil
	}

	s.logger.Info("开始补传离线交易",
		zap.String("trigger", trigger),
		zap.Int("count", len(pending)))

	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var lastErr string
	for i, txn := range pending {
		if err := ctx.Err(); err != nil {
			break
		}

		result, err := s.client.SubmitTransaction(ctx, txn.CardUID, txn.PaperCount, txn.OccurredAt)
		switch {
		case err != nil:
			// 网络层失败，整批中止，等下一轮。网络故障不消耗重试上限
			lastErr = err.Error()
			report.FailedCount++
			if markErr := s.txns.MarkFailed(ctx, txn.TransactionID, err.Error(), 0); markErr != nil {
				s.logger.Warn("标记交易失败出错", zap.Error(markErr))
			}
			s.monitor.MarkOffline()
			s.logger.Warn("补传中断，网络异常",
				zap.String("transaction_id", txn.TransactionID),
				zap.Error(err))
			s.finishLog(ctx, trigger, report, lastErr, start)
			return report, nil
		case !result.Success:
			// 业务拒绝计入重试次数，达到上限后不再补传
			lastErr = result.Message
			report.FailedCount++
			if markErr := s.txns.MarkFailed(ctx, txn.TransactionID, result.Message, maxRetries); markErr != nil {
				s.logger.Warn("标记交易失败出错", zap.Error(markErr))
			}
			s.logger.Warn("交易补传被拒绝",
				zap.String("transaction_id", txn.TransactionID),
				zap.String("reason", result.Message))
		default:
			report.SyncedCount++
			if markErr := s.txns.MarkSynced(ctx, txn.TransactionID); markErr != nil {
				s.logger.Warn("标记交易同步出错", zap.Error(markErr))
			}
			logger.LogTransactionEvent("synced", txn.TransactionID, map[string]interface{}{
				"backend_id":  result.Transaction.ID,
				"paper_count": txn.PaperCount,
			})
		}

		if i < len(pending)-1 && s.itemDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.itemDelay):
			}
		}
	}

	s.finishLog(ctx, trigger, report, lastErr, start)
	s.logger.Info("离线交易补传完成",
		zap.Int("synced", report.SyncedCount),
		zap.Int("failed", report.FailedCount))
	return report, nil
}

func (s *Syncer) finishLog(ctx context.Context, trigger string, report *Report, lastErr string, start time.Time) {
	report.Duration = time.Since(start)
	entry := &models.SyncLog{
		Trigger:     trigger,
		SyncedCount: report.SyncedCount,
		FailedCount: report.FailedCount,
		Duration:    report.Duration.Milliseconds(),
		Error:       lastErr,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Warn("写同步审计日志失败", zap.Error(err))
	}
}

// Run 周期同步循环。启动时按配置先执行一次，之后按固定间隔执行，
// ctx取消后退出。
func (s *Syncer) Run(ctx context.Context) {
	if s.cfg.OnStartup {
		if _, err := s.SyncPending(ctx, "startup"); err != nil {
			s.logger.Error("启动同步失败", zap.Error(err))
		}
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同步任务退出")
			return
		case <-ticker.C:
			if _, err := s.SyncPending(ctx, "interval"); err != nil {
				s.logger.Error("周期同步失败", zap.Error(err))
			}
		}
	}
}
