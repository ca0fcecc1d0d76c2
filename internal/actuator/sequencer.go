package actuator

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/logger"
)

// ServoDriver 舵机驱动接口
type ServoDriver interface {
	SetServoAngle(ch hardware.ServoChannel, angle float64) error
}

// Sequencer 双舵机出纸时序控制器。
// 回收舵机与出纸舵机反向联动：回收侧从开口位扫向闭合位的同时，
// 出纸侧从闭合位扫向开口位，分步小角度推进保持机械同步。
// 同一时刻只允许一次出纸动作，结束后两个舵机必定回到待机位。
type Sequencer struct {
	cfg    config.ActuatorConfig
	driver ServoDriver
	logger *zap.Logger

	mu   sync.Mutex
	busy atomic.Bool
}

// NewSequencer 创建出纸时序控制器
func NewSequencer(cfg config.ActuatorConfig, driver ServoDriver) *Sequencer {
	return &Sequencer{
		cfg:    cfg,
		driver: driver,
		logger: logger.GetModuleLogger("actuator"),
	}
}

// Busy 是否正在执行出纸动作
func (s *Sequencer) Busy() bool {
	return s.busy.Load()
}

// RunCycles 执行指定次数的出纸循环。source标识触发来源（交易/兑换），
// 仅用于日志。无论中途是否出错，返回前都会尝试将舵机复位到待机位。
func (s *Sequencer) RunCycles(ctx context.Context, source string, cycles int) error {
	if cycles <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy.Store(true)
	defer s.busy.Store(false)

	start := time.Now()
	err := s.runCycles(ctx, cycles)

	// 复位必须执行，复位失败的严重性高于动作本身的失败
	if idleErr := s.returnToIdle(); idleErr != nil && err == nil {
		err = idleErr
	}

	logger.LogDispense(source, cycles, time.Since(start), err)
	return err
}

func (s *Sequencer) runCycles(ctx context.Context, cycles int) error {
	for i := 0; i < cycles; i++ {
		if err := ctx.Err(); err != nil {
			return apperrors.New(apperrors.ErrCanceled, "出纸动作被取消")
		}

		// 就位：两个舵机移动到各自的起始位
		if err := s.setBoth(s.cfg.CollectStart, s.cfg.RewardStart); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.cfg.MoveDelay); err != nil {
			return err
		}

		// 同步反向扫描到结束位
		if err := s.sweep(ctx); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.cfg.MoveDelay); err != nil {
			return err
		}

		// 非最后一次循环，先回到起始位准备下一张
		if i < cycles-1 {
			if err := s.setBoth(s.cfg.CollectStart, s.cfg.RewardStart); err != nil {
				return err
			}
			if err := s.sleep(ctx, s.cfg.ReturnDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// sweep 从起始位分步扫描到结束位，两个通道每步同时推进
func (s *Sequencer) sweep(ctx context.Context) error {
	collectSpan := s.cfg.CollectEnd - s.cfg.CollectStart
	rewardSpan := s.cfg.RewardEnd - s.cfg.RewardStart

	span := math.Max(math.Abs(collectSpan), math.Abs(rewardSpan))
	step := s.cfg.AngleStep
	if step <= 0 {
		step = 5
	}
	steps := int(math.Ceil(span / step))
	if steps < 1 {
		steps = 1
	}

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return apperrors.New(apperrors.ErrCanceled, "出纸动作被取消")
		}

		progress := float64(i) / float64(steps)
		collect := s.cfg.CollectStart + collectSpan*progress
		reward := s.cfg.RewardStart + rewardSpan*progress
		if err := s.setBoth(collect, reward); err != nil {
			return err
		}
		if i < steps {
			if err := s.sleep(ctx, s.cfg.StepDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sequencer) setBoth(collect, reward float64) error {
	if err := s.driver.SetServoAngle(hardware.ServoCollect, collect); err != nil {
		return apperrors.Wrap(err, apperrors.ErrActuatorFault, "回收舵机动作失败")
	}
	if err := s.driver.SetServoAngle(hardware.ServoReward, reward); err != nil {
		return apperrors.Wrap(err, apperrors.ErrActuatorFault, "出纸舵机动作失败")
	}
	return nil
}

// returnToIdle 两个舵机复位到待机位。两个通道都会尝试，
// 即使第一个失败也不跳过第二个。
func (s *Sequencer) returnToIdle() error {
	var firstErr error
	if err := s.driver.SetServoAngle(hardware.ServoCollect, s.cfg.CollectIdle); err != nil {
		firstErr = apperrors.Wrap(err, apperrors.ErrActuatorFault, "回收舵机复位失败")
		s.logger.Error("回收舵机复位失败", zap.Error(err))
	}
	if err := s.driver.SetServoAngle(hardware.ServoReward, s.cfg.RewardIdle); err != nil {
		if firstErr == nil {
			firstErr = apperrors.Wrap(err, apperrors.ErrActuatorFault, "出纸舵机复位失败")
		}
		s.logger.Error("出纸舵机复位失败", zap.Error(err))
	}
	if firstErr == nil {
		time.Sleep(s.cfg.ReturnDelay)
	}
	return firstErr
}

func (s *Sequencer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return apperrors.New(apperrors.ErrCanceled, "出纸动作被取消")
	case <-time.After(d):
		return nil
	}
}
