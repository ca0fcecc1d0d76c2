package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feed 按固定采样周期依次喂入采样序列
func feed(s *session, start time.Time, interval time.Duration, readings []bool) time.Time {
	now := start
	for _, r := range readings {
		now = now.Add(interval)
		s.step(r, now)
	}
	return now
}

// repeat 生成n个相同采样
func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestSession(start time.Time) *session {
	return newSession(200*time.Millisecond, 30*time.Second, 10*time.Second, 20, start)
}

func TestSessionCountsStableBlock(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	// 持续遮挡超过去抖时长，计为一张
	feed(s, start, interval, repeat(true, 5))

	assert.Equal(t, 1, s.count)
	assert.Equal(t, StateCounted, s.state)
	assert.False(t, s.done)
}

func TestSessionRejectsBounce(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	// 单次遮挡后立刻恢复，短于200ms去抖时长，不应计数
	var readings []bool
	readings = append(readings, true)
	readings = append(readings, repeat(false, 5)...)
	readings = append(readings, true)
	readings = append(readings, repeat(false, 5)...)
	feed(s, start, interval, readings)

	assert.Equal(t, 0, s.count)
	assert.Equal(t, StateIdle, s.state)
}

func TestSessionBounceThenRealPaper(t *testing.T) {
	start := time.Now()
	s := newSession(200*time.Millisecond, 30*time.Second, 100*time.Millisecond, 20, start)
	interval := 20 * time.Millisecond

	// 畅通×5，抖动遮挡×3（60ms，低于去抖），畅通×5，
	// 真实遮挡×25（500ms），畅通×5：只计一张
	var readings []bool
	readings = append(readings, repeat(false, 5)...)
	readings = append(readings, repeat(true, 3)...)
	readings = append(readings, repeat(false, 5)...)
	readings = append(readings, repeat(true, 25)...)
	readings = append(readings, repeat(false, 5)...)
	now := feed(s, start, interval, readings)

	require.Equal(t, 1, s.count)

	// 最后一张取出后静默超时，正常结束
	s.step(false, now.Add(150*time.Millisecond))
	require.True(t, s.done)
	assert.Equal(t, ReasonCompleted, s.reason)
	assert.Equal(t, 1, s.result(now).Count)
}

func TestSessionSinglePaperWithGaps(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	// 两段稳定遮挡之间光路完全恢复，各计一张
	var readings []bool
	readings = append(readings, repeat(false, 5)...)
	readings = append(readings, repeat(true, 5)...)
	readings = append(readings, repeat(false, 3)...)
	readings = append(readings, repeat(true, 5)...)
	feed(s, start, interval, readings)

	assert.Equal(t, 2, s.count)
}

func TestSessionAwaitingClearIgnoresReblock(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	// 计数后光路恢复一拍又被同一张纸遮挡，不得重复计数
	var readings []bool
	readings = append(readings, repeat(true, 5)...)
	readings = append(readings, false)
	readings = append(readings, repeat(true, 5)...)
	feed(s, start, interval, readings)

	assert.Equal(t, 1, s.count)
	assert.Equal(t, StateCounted, s.state)
}

func TestSessionDistinctPapers(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	// 三张纸，之间光路完全恢复
	var readings []bool
	for i := 0; i < 3; i++ {
		readings = append(readings, repeat(true, 5)...)
		readings = append(readings, repeat(false, 5)...)
	}
	feed(s, start, interval, readings)

	assert.Equal(t, 3, s.count)
	assert.False(t, s.done)
}

func TestSessionContinuousBlockCountsOnce(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	// 持续遮挡30个采样周期（3秒），仍只计一张
	feed(s, start, interval, repeat(true, 30))

	assert.Equal(t, 1, s.count)
	assert.Equal(t, StateCounted, s.state)
}

func TestSessionInitialTimeout(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)

	// 无任何纸张，超过初始等待后以超时结束
	s.step(false, start.Add(29*time.Second))
	assert.False(t, s.done)

	s.step(false, start.Add(31*time.Second))
	require.True(t, s.done)
	assert.Equal(t, ReasonTimedOut, s.reason)

	result := s.result(start.Add(31 * time.Second))
	assert.Equal(t, 0, result.Count)
	assert.False(t, result.Accepted())
}

func TestSessionInactivityCompletes(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	now := feed(s, start, interval, repeat(true, 5))
	require.Equal(t, 1, s.count)

	// 光路恢复确认后静默计时重新开始
	now = feed(s, now, interval, repeat(false, 2))

	s.step(false, now.Add(9*time.Second))
	assert.False(t, s.done)

	s.step(false, now.Add(11*time.Second))
	require.True(t, s.done)
	assert.Equal(t, ReasonCompleted, s.reason)

	result := s.result(now.Add(11 * time.Second))
	assert.Equal(t, 1, result.Count)
	assert.True(t, result.Accepted())
}

func TestSessionBounceDoesNotExtendInactivity(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	now := feed(s, start, interval, repeat(true, 5))
	require.Equal(t, 1, s.count)
	now = feed(s, now, interval, repeat(false, 2))

	// 9秒后一次短于去抖时长的抖动遮挡，被拒绝的抖动不得推迟结束
	bounceAt := now.Add(9 * time.Second)
	s.step(true, bounceAt)
	s.step(false, bounceAt.Add(interval))
	require.False(t, s.done)

	s.step(false, now.Add(11*time.Second))
	require.True(t, s.done)
	assert.Equal(t, ReasonCompleted, s.reason)
	assert.Equal(t, 1, s.count)
}

func TestSessionActivityResetsInactivity(t *testing.T) {
	start := time.Now()
	s := newTestSession(start)
	interval := 100 * time.Millisecond

	now := feed(s, start, interval, repeat(true, 5))
	require.Equal(t, 1, s.count)

	// 9秒后投入第二张，静默计时应从第二张的活动重新开始
	now = now.Add(9 * time.Second)
	now = feed(s, now, interval, repeat(false, 3))
	now = feed(s, now, interval, repeat(true, 5))
	require.Equal(t, 2, s.count)
	assert.False(t, s.done)

	s.step(false, now.Add(11*time.Second))
	require.True(t, s.done)
	assert.Equal(t, ReasonCompleted, s.reason)
	assert.Equal(t, 2, s.count)
}

func TestSessionLimitReached(t *testing.T) {
	start := time.Now()
	s := newSession(200*time.Millisecond, 30*time.Second, 10*time.Second, 3, start)
	interval := 100 * time.Millisecond

	now := start
	for i := 0; i < 5; i++ {
		now = feed(s, now, interval, repeat(true, 5))
		now = feed(s, now, interval, repeat(false, 5))
		if s.done {
			break
		}
	}

	require.True(t, s.done)
	assert.Equal(t, ReasonLimitReached, s.reason)
	assert.Equal(t, 3, s.count)

	// 结束后的采样不再改变计数
	s.step(true, now.Add(time.Second))
	assert.Equal(t, 3, s.count)

	result := s.result(now)
	assert.True(t, result.Accepted())
}
