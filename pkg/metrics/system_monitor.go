package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot 单次主机采样
type HostSnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUPercent   float64   `json:"cpuPercent"`
	MemPercent   float64   `json:"memPercent"`
	MemUsed      uint64    `json:"memUsed"`
	MemTotal     uint64    `json:"memTotal"`
	DiskPercent  float64   `json:"diskPercent"`
	Goroutines   int       `json:"goroutines"`
	HeapAlloc    uint64    `json:"heapAlloc"`
	NumGC        uint32    `json:"numGC"`
	HostUptime   uint64    `json:"hostUptime"`
	Hostname     string    `json:"hostname"`
	Platform     string    `json:"platform"`
	Architecture string    `json:"architecture"`
}

// SystemMonitor 周期性主机采样器，保留最近 maxSnapshots 份快照
type SystemMonitor struct {
	mu        sync.RWMutex
	snapshots []HostSnapshot
	max       int
	interval  time.Duration
	stop      chan struct{}
	running   bool
}

func NewSystemMonitor(maxSnapshots int, interval time.Duration) *SystemMonitor {
	return &SystemMonitor{max: maxSnapshots, interval: interval, stop: make(chan struct{})}
}

func (sm *SystemMonitor) Start() {
	sm.mu.Lock()
	if sm.running {
		sm.mu.Unlock()
		return
	}
	sm.running = true
	sm.mu.Unlock()

	sm.collect()
	go sm.loop()
}

func (sm *SystemMonitor) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.running {
		return
	}
	sm.running = false
	close(sm.stop)
}

func (sm *SystemMonitor) loop() {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sm.collect()
		case <-sm.stop:
			return
		}
	}
}

func (sm *SystemMonitor) collect() {
	snap := HostSnapshot{Timestamp: time.Now(), Architecture: runtime.GOARCH}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemPercent = vm.UsedPercent
		snap.MemUsed = vm.Used
		snap.MemTotal = vm.Total
	}
	if du, err := disk.Usage("/"); err == nil {
		snap.DiskPercent = du.UsedPercent
	}
	if hi, err := host.Info(); err == nil {
		snap.Hostname = hi.Hostname
		snap.Platform = hi.Platform
		snap.HostUptime = hi.Uptime
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.Goroutines = runtime.NumGoroutine()
	snap.HeapAlloc = ms.HeapAlloc
	snap.NumGC = ms.NumGC

	sm.mu.Lock()
	sm.snapshots = append(sm.snapshots, snap)
	if len(sm.snapshots) > sm.max {
		sm.snapshots = sm.snapshots[1:]
	}
	sm.mu.Unlock()
}

// Latest 最近一次快照，尚未采样时返回 false
func (sm *SystemMonitor) Latest() (HostSnapshot, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if len(sm.snapshots) == 0 {
		return HostSnapshot{}, false
	}
	return sm.snapshots[len(sm.snapshots)-1], true
}

// History 最近 limit 份快照，limit<=0 时返回全部
func (sm *SystemMonitor) History(limit int) []HostSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if limit <= 0 || limit > len(sm.snapshots) {
		limit = len(sm.snapshots)
	}
	out := make([]HostSnapshot, limit)
	copy(out, sm.snapshots[len(sm.snapshots)-limit:])
	return out
}
