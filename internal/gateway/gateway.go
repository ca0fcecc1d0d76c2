package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/backend"
	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/logger"
	"github.com/wfunc/recycle-kiosk/internal/models"
	"github.com/wfunc/recycle-kiosk/internal/repository"
)

// VerifyOutcome 卡片验证结果。在线与离线两条路径返回同一形状，
// 上层不感知验证走的是后端还是本地缓存。
type VerifyOutcome struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Points   int64  `json:"points"`
	Offline  bool   `json:"offline"`
	Reason   string `json:"reason,omitempty"`
}

// SubmitOutcome 交易提交结果
type SubmitOutcome struct {
	Accepted      bool   `json:"accepted"`
	Offline       bool   `json:"offline"`
	TransactionID string `json:"transaction_id"`
	PointsAwarded int64  `json:"points_awarded"`
	TotalPoints   int64  `json:"total_points"`
	Reason        string `json:"reason,omitempty"`
}

// Gateway 身份验证与交易提交网关。
// 在线优先：请求后端成功则同时刷新本地缓存；网络失败时降级到
// 离线缓存验证和离线排队提交。后端明确拒绝不降级。
type Gateway struct {
	client  *backend.Client
	monitor *backend.Monitor
	users   repository.CachedUserRepository
	txns    repository.PendingTransactionRepository

	pointsPerUnit int64
	logger        *zap.Logger
}

// NewGateway 创建网关
func NewGateway(
	client *backend.Client,
	monitor *backend.Monitor,
	users repository.CachedUserRepository,
	txns repository.PendingTransactionRepository,
	machine config.MachineConfig,
) *Gateway {
	return &Gateway{
		client:        client,
		monitor:       monitor,
		users:         users,
		txns:          txns,
		pointsPerUnit: machine.PointsPerUnit,
		logger:        logger.GetModuleLogger("gateway"),
	}
}

// Verify 验证卡片。在线验证成功后刷新用户缓存；
// 后端明确回答无效时直接返回无效，不再查缓存。
func (g *Gateway) Verify(ctx context.Context, cardUID string) (*VerifyOutcome, error) {
	if g.monitor.IsOnline(ctx) {
		result, err := g.client.VerifyCard(ctx, cardUID)
		if err == nil {
			if !result.Valid {
				g.logger.Info("卡片验证被后端拒绝",
					zap.String("card_uid", cardUID),
					zap.String("reason", result.Message))
				return &VerifyOutcome{Valid: false, Reason: result.Message}, nil
			}

			user := &models.CachedUser{
				CardUID: cardUID,
				UserID:  result.User.UserID.String(),
				Name:    result.User.UserName,
				Points:  result.User.Points,
				Status:  statusOrActive(result.User.Status),
			}
			user.MarkVerified()
			if cacheErr := g.users.Upsert(ctx, user); cacheErr != nil {
				g.logger.Warn("用户缓存刷新失败", zap.Error(cacheErr))
			}

			g.logger.Info("卡片在线验证通过",
				zap.String("card_uid", cardUID),
				zap.String("user", result.User.UserName))
			return &VerifyOutcome{
				Valid:    true,
				UserID:   result.User.UserID.String(),
				UserName: result.User.UserName,
				Points:   result.User.Points,
			}, nil
		}

		g.logger.Warn("在线验证失败，降级离线缓存", zap.Error(err))
		g.monitor.MarkOffline()
	}

	return g.verifyOffline(ctx, cardUID)
}

func (g *Gateway) verifyOffline(ctx context.Context, cardUID string) (*VerifyOutcome, error) {
	user, err := g.users.FindByCardUID(ctx, cardUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			g.logger.Info("卡片不在离线缓存中", zap.String("card_uid", cardUID))
			return &VerifyOutcome{Valid: false, Offline: true, Reason: "卡片未注册"}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "离线缓存查询失败")
	}

	if !user.IsActive() {
		g.logger.Info("离线缓存用户已冻结", zap.String("card_uid", cardUID))
		return &VerifyOutcome{Valid: false, Offline: true, Reason: "账户已冻结"}, nil
	}

	if err := g.users.TouchVerified(ctx, cardUID); err != nil {
		g.logger.Warn("记录离线验证时间失败", zap.Error(err))
	}

	g.logger.Info("卡片离线验证通过",
		zap.String("card_uid", cardUID),
		zap.String("user", user.Name))
	return &VerifyOutcome{
		Valid:    true,
		UserID:   user.UserID,
		UserName: user.Name,
		Points:   user.Points,
		Offline:  true,
	}, nil
}

// Submit 提交交易。在线提交成功后落库留痕并刷新缓存积分；
// 网络失败时落库排队、本地先行加分，等同步任务补传。
// 后端明确拒绝视为业务拒绝，不排队。
func (g *Gateway) Submit(ctx context.Context, cardUID string, userID string, paperCount int) (*SubmitOutcome, error) {
	if paperCount <= 0 {
		return nil, apperrors.New(apperrors.ErrNoPaperDetected, "未检测到纸张")
	}

	points := int64(paperCount) * g.pointsPerUnit
	occurredAt := time.Now()

	if g.monitor.IsOnline(ctx) {
		result, err := g.client.SubmitTransaction(ctx, cardUID, paperCount, occurredAt)
		if err == nil {
			if !result.Success {
				g.logger.Warn("交易被后端拒绝",
					zap.String("card_uid", cardUID),
					zap.String("reason", result.Message))
				return &SubmitOutcome{Accepted: false, Reason: result.Message}, nil
			}
			return g.recordOnlineSubmit(ctx, cardUID, userID, paperCount, points, occurredAt, result), nil
		}

		g.logger.Warn("在线提交失败，转离线排队", zap.Error(err))
		g.monitor.MarkOffline()
	}

	return g.submitOffline(ctx, cardUID, userID, paperCount, points, occurredAt)
}

func (g *Gateway) recordOnlineSubmit(ctx context.Context, cardUID, userID string, paperCount int, points int64, occurredAt time.Time, result *backend.SubmitResult) *SubmitOutcome {
	awarded := result.Transaction.PointsAwarded
	if awarded == 0 {
		awarded = points
	}

	txn := &models.PendingTransaction{
		TransactionID: transactionID(result.Transaction.ID),
		CardUID:       cardUID,
		UserID:        userID,
		PaperCount:    paperCount,
		PointsAwarded: awarded,
		Status:        models.TxStatusSynced,
		OccurredAt:    occurredAt,
	}
	txn.MarkSynced()
	if err := g.txns.Create(ctx, txn); err != nil {
		g.logger.Warn("在线交易留痕失败", zap.Error(err))
	}

	if err := g.users.AddPoints(ctx, cardUID, awarded); err != nil && !errors.Is(err, repository.ErrNotFound) {
		g.logger.Warn("缓存积分刷新失败", zap.Error(err))
	}

	total := result.Transaction.TotalPoints
	if total == 0 {
		if user, err := g.users.FindByCardUID(ctx, cardUID); err == nil {
			total = user.Points
		}
	}

	logger.LogTransactionEvent("submitted_online", txn.TransactionID, map[string]interface{}{
		"card_uid":    cardUID,
		"paper_count": paperCount,
		"points":      awarded,
	})
	return &SubmitOutcome{
		Accepted:      true,
		TransactionID: txn.TransactionID,
		PointsAwarded: awarded,
		TotalPoints:   total,
	}
}

func (g *Gateway) submitOffline(ctx context.Context, cardUID, userID string, paperCount int, points int64, occurredAt time.Time) (*SubmitOutcome, error) {
	txn := &models.PendingTransaction{
		TransactionID:  uuid.NewString(),
		CardUID:        cardUID,
		UserID:         userID,
		PaperCount:     paperCount,
		PointsAwarded:  points,
		Status:         models.TxStatusPending,
		CreatedOffline: true,
		OccurredAt:     occurredAt,
	}
	if err := g.txns.Create(ctx, txn); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "离线交易排队失败")
	}

	// 本地先行加分，同步成功后以后端结果为准
	if err := g.users.AddPoints(ctx, cardUID, points); err != nil && !errors.Is(err, repository.ErrNotFound) {
		g.logger.Warn("离线积分更新失败", zap.Error(err))
	}

	total := points
	if user, err := g.users.FindByCardUID(ctx, cardUID); err == nil {
		total = user.Points
	}

	logger.LogTransactionEvent("queued_offline", txn.TransactionID, map[string]interface{}{
		"card_uid":    cardUID,
		"paper_count": paperCount,
		"points":      points,
	})
	g.logger.Info("交易已离线排队",
		zap.String("transaction_id", txn.TransactionID),
		zap.Int("paper_count", paperCount))

	return &SubmitOutcome{
		Accepted:      true,
		Offline:       true,
		TransactionID: txn.TransactionID,
		PointsAwarded: points,
		TotalPoints:   total,
	}, nil
}

func transactionID(backendID string) string {
	if backendID != "" {
		return backendID
	}
	return uuid.NewString()
}

func statusOrActive(status string) string {
	if status == "" {
		return "active"
	}
	return status
}
