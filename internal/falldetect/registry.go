package falldetect

import (
	"sync"

	"SafeBuddyGuardian/pkg/config"
)

// Registry 按用户管理跌倒监测器。设备通道的加速度采样经这里
// 路由到对应用户的状态机。
type Registry struct {
	cfg     config.FallConfig
	alerter Alerter
	escal   EscalateFunc

	mu       sync.Mutex
	monitors map[uint]*Monitor
}

func NewRegistry(cfg config.FallConfig, alerter Alerter, escalate EscalateFunc) *Registry {
	return &Registry{
		cfg:      cfg,
		alerter:  alerter,
		escal:    escalate,
		monitors: make(map[uint]*Monitor),
	}
}

// Enable 为用户开启监测，幂等
func (r *Registry) Enable(userID uint) *Monitor {
	r.mu.Lock()
	m, ok := r.monitors[userID]
	if !ok {
		m = NewMonitor(userID, r.cfg, r.alerter, r.escal)
		r.monitors[userID] = m
	}
	r.mu.Unlock()
	m.Start()
	return m
}

// Disable 关闭用户的监测并释放监测器
func (r *Registry) Disable(userID uint) {
	r.mu.Lock()
	m, ok := r.monitors[userID]
	if ok {
		delete(r.monitors, userID)
	}
	r.mu.Unlock()
	if ok {
		m.Close()
	}
}

// Get 返回用户的监测器，未开启时为 nil
func (r *Registry) Get(userID uint) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitors[userID]
}

// Sample 路由一个加速度采样；监测未开启时静默丢弃
func (r *Registry) Sample(userID uint, magnitude float64) {
	if m := r.Get(userID); m != nil {
		m.Sample(magnitude)
	}
}

// Close 释放全部监测器
func (r *Registry) Close() {
	r.mu.Lock()
	monitors := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		monitors = append(monitors, m)
	}
	r.monitors = make(map[uint]*Monitor)
	r.mu.Unlock()
	for _, m := range monitors {
		m.Close()
	}
}
