package metrics

import (
	"sync"
)

var (
	global *Metrics
	mu     sync.RWMutex
)

// SetGlobal 设置全局指标实例
func SetGlobal(m *Metrics) {
	mu.Lock()
	defer mu.Unlock()
	global = m
}

// Global 获取全局指标实例，可能为 nil
func Global() *Metrics {
	mu.RLock()
	defer mu.RUnlock()
	return global
}
