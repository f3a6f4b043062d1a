package sos

import "sync"

// Status 单个子系统的激活结果
type Status string

const (
	StatusPending  Status = "pending"
	StatusOk       Status = "ok"
	StatusDegraded Status = "degraded" // 首选实现不可用，降级方案生效
	StatusFailed   Status = "failed"
	StatusPartial  Status = "partial" // 通知类：部分通道/联系人成功
)

// 子系统名
const (
	SubsystemSiren         = "siren"
	SubsystemFlashlight    = "flashlight"
	SubsystemLocations     = "locations"
	SubsystemNotifications = "notifications"
	SubsystemCalls         = "calls"
)

// Outcome 一次激活的各子系统结果。激活返回后异步收敛，
// 任何子系统失败都不影响其余子系统。
type Outcome struct {
	mu            sync.RWMutex
	Siren         Status `json:"siren"`
	Flashlight    Status `json:"flashlight"`
	Locations     Status `json:"locations"`
	Notifications Status `json:"notifications"`
	Calls         Status `json:"calls"`
}

func newOutcome() *Outcome {
	return &Outcome{
		Siren:         StatusPending,
		Flashlight:    StatusPending,
		Locations:     StatusPending,
		Notifications: StatusPending,
		Calls:         StatusPending,
	}
}

func (o *Outcome) set(subsystem string, s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch subsystem {
	case SubsystemSiren:
		o.Siren = s
	case SubsystemFlashlight:
		o.Flashlight = s
	case SubsystemLocations:
		o.Locations = s
	case SubsystemNotifications:
		o.Notifications = s
	case SubsystemCalls:
		o.Calls = s
	}
}

// Snapshot 返回当前结果的拷贝（无锁共享）
func (o *Outcome) Snapshot() map[string]Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return map[string]Status{
		SubsystemSiren:         o.Siren,
		SubsystemFlashlight:    o.Flashlight,
		SubsystemLocations:     o.Locations,
		SubsystemNotifications: o.Notifications,
		SubsystemCalls:         o.Calls,
	}
}
