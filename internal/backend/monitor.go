package backend

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// Monitor 网络状态监控。健康检查结果在短时间内缓存，
// 避免每次交易都对后端发起探测。
type Monitor struct {
	client   *Client
	cacheFor time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	online    bool
	lastCheck time.Time
}

// NewMonitor 创建网络状态监控
func NewMonitor(client *Client, cfg config.SyncConfig) *Monitor {
	return &Monitor{
		client:   client,
		cacheFor: cfg.NetworkCheckCache,
		timeout:  cfg.NetworkTimeout,
		logger:   logger.GetModuleLogger("sync"),
	}
}

// IsOnline 返回当前网络状态，在缓存窗口内不重新探测
func (m *Monitor) IsOnline(ctx context.Context) bool {
	m.mu.Lock()
	if time.Since(m.lastCheck) < m.cacheFor {
		online := m.online
		m.mu.Unlock()
		return online
	}
	m.mu.Unlock()
	return m.Check(ctx)
}

// Check 强制探测后端可达性
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.client.Health(ctx, m.timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheck = time.Now()

	online := err == nil
	if online != m.online {
		if online {
			m.logger.Info("网络恢复，切换在线模式")
		} else {
			m.logger.Warn("网络不可达，切换离线模式", zap.Error(err))
		}
	}
	m.online = online
	return online
}

// MarkOffline 请求失败后立即标记离线，后续以缓存窗口节流重试
func (m *Monitor) MarkOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online {
		m.logger.Warn("后端请求失败，切换离线模式")
	}
	m.online = false
	m.lastCheck = time.Now()
}

// WaitForNetwork 阻塞等待网络可用，超时返回false
func (m *Monitor) WaitForNetwork(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Check(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Second):
		}
	}
	return false
}
