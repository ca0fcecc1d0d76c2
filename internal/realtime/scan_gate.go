package realtime

import (
	"sync"
	"time"
)

// ScanGate 扫卡互斥门。后台发起注册扫卡时暂停正常交易读卡，
// 扫卡成功后进入冷却期，避免同一张卡立刻被交易流程再次读到。
// 冷却刚结束的短窗口内读到的卡同样跳过，因为大概率是用户
// 还没来得及拿走的那张注册卡。
type ScanGate struct {
	mu sync.Mutex

	active    bool
	requestID string

	cooldown      time.Duration
	skipWindow    time.Duration
	cooldownUntil time.Time
}

// NewScanGate 创建扫卡互斥门
func NewScanGate(cooldown, skipWindow time.Duration) *ScanGate {
	return &ScanGate{
		cooldown:   cooldown,
		skipWindow: skipWindow,
	}
}

// Begin 标记扫卡请求开始。已有进行中的扫卡时返回false。
func (g *ScanGate) Begin(requestID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return false
	}
	g.active = true
	g.requestID = requestID
	return true
}

// Finish 扫卡结束。detected为真时启动冷却期。
func (g *ScanGate) Finish(requestID string, detected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.requestID != requestID {
		return
	}
	g.active = false
	g.requestID = ""
	if detected {
		g.cooldownUntil = time.Now().Add(g.cooldown)
	}
}

// Cancel 取消进行中的扫卡请求。requestID为空表示无条件取消。
func (g *ScanGate) Cancel(requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if requestID != "" && g.requestID != requestID {
		return
	}
	g.active = false
	g.requestID = ""
}

// Active 是否有进行中的扫卡请求
func (g *ScanGate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// ShouldSkipCard 交易流程读到卡后是否应丢弃。
// 扫卡进行中、冷却期内、以及冷却刚结束的跳过窗口内都丢弃。
func (g *ScanGate) ShouldSkipCard() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		return true
	}
	if g.cooldownUntil.IsZero() {
		return false
	}
	now := time.Now()
	if now.Before(g.cooldownUntil) {
		return true
	}
	return now.Sub(g.cooldownUntil) < g.skipWindow
}
