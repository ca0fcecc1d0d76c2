package detector

import (
	"time"
)

// SessionState 检测会话状态枚举
type SessionState string

const (
	StateIdle          SessionState = "idle"           // 光路畅通，等待纸张
	StateCandidate     SessionState = "candidate_low"  // 光路被遮挡，去抖确认中
	StateCounted       SessionState = "counted"        // 本张已计数，纸张仍在光路中
	StateAwaitingClear SessionState = "awaiting_clear" // 等待光路稳定恢复
)

// 光路恢复需要的连续畅通采样数
const clearStableReads = 2

// EndReason 会话结束原因
type EndReason string

const (
	ReasonCompleted    EndReason = "completed"     // 有纸张且静默超时，正常结束
	ReasonTimedOut     EndReason = "timed_out"     // 无任何纸张，初始超时
	ReasonLimitReached EndReason = "limit_reached" // 达到单次投放上限
)

// Result 检测会话结果
type Result struct {
	Count    int           `json:"count"`
	Reason   EndReason     `json:"reason"`
	Duration time.Duration `json:"duration"`
}

// Accepted 是否为可结算的成功结果
func (r *Result) Accepted() bool {
	return r.Count > 0 && (r.Reason == ReasonCompleted || r.Reason == ReasonLimitReached)
}

// session 单次投放的计数状态机：
//
//	idle → candidate_low → counted → awaiting_clear → idle
//
// 纯逻辑实现，时间由调用方注入，便于测试。
type session struct {
	debounce          time.Duration
	initialTimeout    time.Duration
	inactivityTimeout time.Duration
	maxUnits          int

	state          SessionState
	count          int
	startAt        time.Time
	candidateAt    time.Time
	lastActivityAt time.Time // 最近一次确认计数或光路恢复的时刻，抖动不刷新
	clearReads     int

	done   bool
	reason EndReason
}

func newSession(debounce, initialTimeout, inactivityTimeout time.Duration, maxUnits int, now time.Time) *session {
	return &session{
		debounce:          debounce,
		initialTimeout:    initialTimeout,
		inactivityTimeout: inactivityTimeout,
		maxUnits:          maxUnits,
		state:             StateIdle,
		startAt:           now,
		lastActivityAt:    now,
	}
}

// step 处理一次采样。present为真表示红外光路被遮挡（有纸）。
// 返回本次采样是否产生了新的计数。
func (s *session) step(present bool, now time.Time) (counted bool) {
	if s.done {
		return false
	}

	switch s.state {
	case StateIdle:
		if present {
			// 遮挡开始，进入去抖确认
			s.state = StateCandidate
			s.candidateAt = now
		}

	case StateCandidate:
		if !present {
			// 短于去抖时长的遮挡视为抖动，丢弃，不刷新静默计时
			s.state = StateIdle
		} else if now.Sub(s.candidateAt) >= s.debounce {
			// 遮挡稳定超过去抖时长，确认为一张
			s.count++
			s.state = StateCounted
			s.lastActivityAt = now
			counted = true
			if s.maxUnits > 0 && s.count >= s.maxUnits {
				s.finish(ReasonLimitReached)
				return counted
			}
		}

	case StateCounted:
		// 同一张纸持续遮挡不重复计数，光路恢复后开始确认
		if !present {
			s.state = StateAwaitingClear
			s.clearReads = 1
		}

	case StateAwaitingClear:
		if present {
			// 恢复过程中再次遮挡，仍视为同一张纸
			s.state = StateCounted
		} else {
			s.clearReads++
			if s.clearReads >= clearStableReads {
				s.state = StateIdle
				s.lastActivityAt = now
			}
		}
	}

	if s.count == 0 {
		if now.Sub(s.startAt) >= s.initialTimeout {
			s.finish(ReasonTimedOut)
		}
	} else if now.Sub(s.lastActivityAt) >= s.inactivityTimeout {
		s.finish(ReasonCompleted)
	}
	return counted
}

func (s *session) finish(reason EndReason) {
	s.done = true
	s.reason = reason
}

func (s *session) result(now time.Time) *Result {
	return &Result{
		Count:    s.count,
		Reason:   s.reason,
		Duration: now.Sub(s.startAt),
	}
}
