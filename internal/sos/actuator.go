package sos

import (
	"context"
	"sync"

	"SafeBuddyGuardian/pkg/logger"

	"go.uber.org/zap"
)

// Driver 设备侧可开关能力的驱动（如内置警报音、系统闪光灯）
type Driver interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DriverFunc 便捷构造：用函数对实现 Driver
type DriverFunc struct {
	Label   string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

func (d DriverFunc) Name() string { return d.Label }

func (d DriverFunc) Start(ctx context.Context) error {
	if d.OnStart == nil {
		return nil
	}
	return d.OnStart(ctx)
}

func (d DriverFunc) Stop(ctx context.Context) error {
	if d.OnStop == nil {
		return nil
	}
	return d.OnStop(ctx)
}

// Actuator 带降级链的幂等开关：首选驱动失败时退到备用驱动，
// 两者都失败才算失败。重复 Enable/Disable 是安全的空操作。
type Actuator struct {
	name     string
	primary  Driver
	fallback Driver

	mu     sync.Mutex
	active Driver // 当前生效的驱动，nil 表示关闭
}

func NewActuator(name string, primary, fallback Driver) *Actuator {
	return &Actuator{name: name, primary: primary, fallback: fallback}
}

// Enable 开启执行器。已开启时直接返回上次的状态。
func (a *Actuator) Enable(ctx context.Context) Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != nil {
		if a.active == a.primary {
			return StatusOk
		}
		return StatusDegraded
	}
	if a.primary != nil {
		if err := a.primary.Start(ctx); err == nil {
			a.active = a.primary
			return StatusOk
		} else {
			logger.Warn("actuator primary driver failed, trying fallback",
				zap.String("actuator", a.name),
				zap.String("driver", a.primary.Name()),
				zap.Error(err))
		}
	}
	if a.fallback != nil {
		if err := a.fallback.Start(ctx); err == nil {
			a.active = a.fallback
			return StatusDegraded
		} else {
			logger.Error("actuator fallback driver failed",
				zap.String("actuator", a.name),
				zap.String("driver", a.fallback.Name()),
				zap.Error(err))
		}
	}
	return StatusFailed
}

// Disable 关闭执行器；未开启时为空操作。
func (a *Actuator) Disable(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return
	}
	if err := a.active.Stop(ctx); err != nil {
		logger.Warn("actuator stop failed",
			zap.String("actuator", a.name),
			zap.String("driver", a.active.Name()),
			zap.Error(err))
	}
	a.active = nil
}

// Enabled 当前是否处于开启状态
func (a *Actuator) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil
}
