package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScanGateBeginExcludes(t *testing.T) {
	gate := NewScanGate(100*time.Millisecond, 50*time.Millisecond)

	assert.True(t, gate.Begin("req-1"))
	assert.True(t, gate.Active())

	// 进行中不允许第二个扫卡请求
	assert.False(t, gate.Begin("req-2"))

	gate.Finish("req-1", false)
	assert.False(t, gate.Active())
	assert.True(t, gate.Begin("req-2"))
}

func TestScanGateSkipDuringScan(t *testing.T) {
	gate := NewScanGate(100*time.Millisecond, 50*time.Millisecond)

	assert.False(t, gate.ShouldSkipCard())

	gate.Begin("req-1")
	assert.True(t, gate.ShouldSkipCard())

	// 未读到卡结束，无冷却
	gate.Finish("req-1", false)
	assert.False(t, gate.ShouldSkipCard())
}

func TestScanGateCooldownAfterDetection(t *testing.T) {
	gate := NewScanGate(50*time.Millisecond, 30*time.Millisecond)

	gate.Begin("req-1")
	gate.Finish("req-1", true)

	// 冷却期内读到的卡丢弃
	assert.True(t, gate.ShouldSkipCard())

	// 冷却刚结束的窗口内仍然丢弃，大概率是同一张卡
	time.Sleep(60 * time.Millisecond)
	assert.True(t, gate.ShouldSkipCard())

	// 窗口过后恢复正常读卡
	time.Sleep(40 * time.Millisecond)
	assert.False(t, gate.ShouldSkipCard())
}

func TestScanGateCancel(t *testing.T) {
	gate := NewScanGate(50*time.Millisecond, 30*time.Millisecond)

	gate.Begin("req-1")
	// 其他请求的取消不影响进行中的扫卡
	gate.Cancel("req-2")
	assert.True(t, gate.Active())

	gate.Cancel("req-1")
	assert.False(t, gate.Active())
	// 取消不产生冷却
	assert.False(t, gate.ShouldSkipCard())
}

func TestScanGateFinishWrongRequest(t *testing.T) {
	gate := NewScanGate(50*time.Millisecond, 30*time.Millisecond)

	gate.Begin("req-1")
	gate.Finish("req-other", true)
	assert.True(t, gate.Active())
}
