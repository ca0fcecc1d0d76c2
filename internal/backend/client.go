package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// Client 后端REST接口客户端。所有请求携带机器身份头，
// 网络错误与业务拒绝通过错误码区分，调用方据此决定是否降级离线。
type Client struct {
	baseURL string
	machine config.MachineConfig
	cfg     config.BackendConfig
	http    *http.Client
	logger  *zap.Logger
}

// NewClient 创建后端接口客户端
func NewClient(cfg config.BackendConfig, machine config.MachineConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		machine: machine,
		cfg:     cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.GetModuleLogger("backend"),
	}
}

// VerifyUser 验证用户卡片的响应。
// 后端的userId可能是数字或字符串，统一用json.Number兼容。
type VerifyUser struct {
	UserID   json.Number `json:"userId"`
	UserName string      `json:"userName"`
	Points   int64       `json:"points"`
	Status   string      `json:"status"`
}

// VerifyResult 卡片验证结果
type VerifyResult struct {
	Valid   bool       `json:"valid"`
	User    VerifyUser `json:"user"`
	Message string     `json:"message"`
}

// SubmitResult 交易提交结果
type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Transaction struct {
		ID            string `json:"id"`
		PointsAwarded int64  `json:"pointsAwarded"`
		TotalPoints   int64  `json:"totalPoints"`
	} `json:"transaction"`
}

// Heartbeat 心跳上报内容
type Heartbeat struct {
	MachineID     string            `json:"machineId"`
	Status        string            `json:"status"`
	PaperStock    int               `json:"bondPaperStock"`
	PaperCapacity int               `json:"bondPaperCapacity"`
	SensorHealth  map[string]string `json:"sensorHealth"`
	Timestamp     string            `json:"timestamp"`
}

// RedemptionItem 后端下发的待出纸兑换
type RedemptionItem struct {
	RedemptionID string      `json:"redemptionId"`
	CardUID      string      `json:"rfidTag"`
	UserID       json.Number `json:"userId"`
	RewardName   string      `json:"rewardName"`
}

// Health 检查后端可达性，使用独立的短超时
func (c *Client) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.cfg.HealthPath, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrBackendRequest, "构建健康检查请求失败")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrNetworkOffline, "后端不可达")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.ErrBackendResponse, "健康检查返回异常状态: %d", resp.StatusCode)
	}
	return nil
}

// VerifyCard 在线验证卡片
func (c *Client) VerifyCard(ctx context.Context, cardUID string) (*VerifyResult, error) {
	var result VerifyResult
	err := c.doJSON(ctx, http.MethodPost, "/rfid/verify", map[string]any{
		"rfidTag":   cardUID,
		"machineId": c.machine.ID,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitTransaction 在线提交交易
func (c *Client) SubmitTransaction(ctx context.Context, cardUID string, paperCount int, occurredAt time.Time) (*SubmitResult, error) {
	var result SubmitResult
	err := c.doJSON(ctx, http.MethodPost, "/transaction/submit", map[string]any{
		"rfidTag":    cardUID,
		"paperCount": paperCount,
		"timestamp":  occurredAt.Format(time.RFC3339),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SendHeartbeat 上报机器心跳
func (c *Client) SendHeartbeat(ctx context.Context, hb *Heartbeat) error {
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if hb.MachineID == "" {
		hb.MachineID = c.machine.ID
	}
	if hb.Timestamp == "" {
		hb.Timestamp = time.Now().Format(time.RFC3339)
	}
	return c.doJSON(ctx, http.MethodPost, "/machine/heartbeat", hb, &result)
}

// PendingRedemptions 拉取待出纸的兑换列表
func (c *Client) PendingRedemptions(ctx context.Context) ([]RedemptionItem, error) {
	var result struct {
		Success     bool             `json:"success"`
		Redemptions []RedemptionItem `json:"redemptions"`
		Message     string           `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/redemption/pending", nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, apperrors.Newf(apperrors.ErrBackendRejected, "拉取兑换列表被拒绝: %s", result.Message)
	}
	return result.Redemptions, nil
}

// MarkRedemptionDispensed 上报兑换已出纸
func (c *Client) MarkRedemptionDispensed(ctx context.Context, redemptionID string) error {
	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/redemption/dispense", map[string]any{
		"redemptionId": redemptionID,
		"machineId":    c.machine.ID,
	}, &result)
	if err != nil {
		return err
	}
	if !result.Success {
		return apperrors.Newf(apperrors.ErrBackendRejected, "兑换出纸上报被拒绝: %s", result.Message)
	}
	return nil
}

// doJSON 发送JSON请求并解析响应。网络层错误返回ErrBackendRequest，
// 非200状态返回ErrBackendResponse。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrBackendRequest, "请求序列化失败")
		}
		reader = bytes.NewReader(buf)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrBackendRequest, "构建请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Machine-ID", c.machine.ID)
	req.Header.Set("X-Machine-Secret", c.machine.Secret)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("后端请求失败",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return apperrors.Wrap(err, apperrors.ErrBackendRequest, fmt.Sprintf("请求失败: %s %s", method, path))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrBackendResponse, "读取响应失败")
	}

	c.logger.Debug("后端请求完成",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.ErrBackendResponse, "后端返回异常状态: %d %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return apperrors.Wrap(err, apperrors.ErrBackendResponse, "响应解析失败")
		}
	}
	return nil
}
