package util

import "sync"

// SignalHandler 信号处理函数：sender 为触发方，params 为附加参数
type SignalHandler func(sender any, params ...any)

// Signals 进程内信号总线，用于解耦业务事件与监听器
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

var (
	sig     *Signals
	sigOnce sync.Once
)

// Sig 获取全局信号总线
func Sig() *Signals {
	sigOnce.Do(func() {
		sig = &Signals{handlers: make(map[string][]SignalHandler)}
	})
	return sig
}

// Connect 注册监听器
func (s *Signals) Connect(name string, handler SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], handler)
}

// Emit 同步触发所有监听器（监听器内部自行决定是否异步）
func (s *Signals) Emit(name string, sender any, params ...any) {
	s.mu.RLock()
	handlers := make([]SignalHandler, len(s.handlers[name]))
	copy(handlers, s.handlers[name])
	s.mu.RUnlock()
	for _, h := range handlers {
		h(sender, params...)
	}
}

// Clear 移除某个信号的全部监听器（主要用于测试）
func (s *Signals) Clear(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, name)
}
