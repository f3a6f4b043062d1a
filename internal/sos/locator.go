package sos

import (
	"context"
	"sync"
	"time"

	pkgerr "SafeBuddyGuardian/pkg/errors"
)

const CodeLocationUnavailable = 42201

// ErrLocationUnavailable 设备没有可用的定位读数
var ErrLocationUnavailable = pkgerr.WithCode(CodeLocationUnavailable, "location unavailable")

// Position 一次定位读数（含电量快照）
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Battery   *int      `json:"batteryLevel,omitempty"`
	At        time.Time `json:"at"`
}

// Locator 按用户取当前位置。读数来自设备上报，
// 没有新鲜读数时返回 ErrLocationUnavailable。
type Locator interface {
	Current(ctx context.Context, userID uint) (Position, error)
}

// DeviceLocator 缓存每个用户设备最近一次上报的位置。
// WebSocket 设备通道和 REST 位置上报都会写入这里。
type DeviceLocator struct {
	mu      sync.RWMutex
	last    map[uint]Position
	maxAge  time.Duration
	nowFunc func() time.Time
}

func NewDeviceLocator(maxAge time.Duration) *DeviceLocator {
	return &DeviceLocator{
		last:    make(map[uint]Position),
		maxAge:  maxAge,
		nowFunc: time.Now,
	}
}

// Report 记录设备上报的定位
func (l *DeviceLocator) Report(userID uint, p Position) {
	if p.At.IsZero() {
		p.At = l.nowFunc()
	}
	l.mu.Lock()
	l.last[userID] = p
	l.mu.Unlock()
}

// Current 返回最近一次上报；过期或不存在时报 ErrLocationUnavailable
func (l *DeviceLocator) Current(_ context.Context, userID uint) (Position, error) {
	l.mu.RLock()
	p, ok := l.last[userID]
	l.mu.RUnlock()
	if !ok {
		return Position{}, ErrLocationUnavailable
	}
	if l.maxAge > 0 && l.nowFunc().Sub(p.At) > l.maxAge {
		return Position{}, ErrLocationUnavailable
	}
	return p, nil
}
