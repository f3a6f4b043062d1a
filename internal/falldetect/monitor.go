package falldetect

import (
	"context"
	"strings"
	"sync"
	"time"

	"SafeBuddyGuardian/pkg/config"
	pkgerr "SafeBuddyGuardian/pkg/errors"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/metrics"
	"SafeBuddyGuardian/pkg/scheduler"

	"go.uber.org/zap"
)

// State 监测器状态机
type State int

const (
	StateIdle State = iota
	StateMonitoring
	StateConfirmationPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMonitoring:
		return "monitoring"
	case StateConfirmationPending:
		return "confirmation_pending"
	default:
		return "unknown"
	}
}

const (
	CodeNotMonitoring = 40403
	CodeNotPending    = 40404
)

var (
	// ErrNotMonitoring 监测未开启
	ErrNotMonitoring = pkgerr.WithCode(CodeNotMonitoring, "fall monitoring is not enabled")
	// ErrNothingPending 当前没有待确认的跌倒
	ErrNothingPending = pkgerr.WithCode(CodeNotPending, "no fall confirmation pending")
)

// affirmatives 语音确认"我没事"的关键词（小写匹配）
var affirmatives = []string{
	"yes", "i'm fine", "im fine", "i am fine", "fine", "okay", "ok",
	"haan", "main theek hoon", "theek hoon", "theek",
}

// MatchAffirmative 语音转写文本是否表示"我没事"
func MatchAffirmative(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, kw := range affirmatives {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// Alerter 确认窗口期间的设备侧提示（提示音、弹窗、语音询问）
type Alerter interface {
	RaiseFallPrompt(ctx context.Context, userID uint, deadline time.Time)
	ClearFallPrompt(ctx context.Context, userID uint)
}

// EscalateFunc 确认窗口超时后的升级动作（触发 SOS 激活）
type EscalateFunc func(ctx context.Context, userID uint) error

// Event 一次疑似跌倒的确认流水
type Event struct {
	Magnitude  float64   `json:"magnitude"`
	DetectedAt time.Time `json:"detectedAt"`
	Deadline   time.Time `json:"deadline"`
}

// Monitor 单用户的跌倒监测状态机。
//
//	Idle → Monitoring → ConfirmationPending → (确认解除 → Monitoring
//	                                           | 超时 → 升级，回到 Monitoring)
//
// 确认窗口是硬超时：窗口内没有任何确认就必定升级。确认与超时之间
// 先到先得，升级后迟到的确认不再有效。
type Monitor struct {
	userID  uint
	cfg     config.FallConfig
	det     *Detector
	sched   *scheduler.Scheduler
	alerter Alerter
	escal   EscalateFunc

	// 状态机内部串行化：锁内只做状态转移，不做 IO
	mu      sync.Mutex
	state   State
	pending *Event
	timeout *scheduler.Task
}

func NewMonitor(userID uint, cfg config.FallConfig, alerter Alerter, escalate EscalateFunc) *Monitor {
	m := &Monitor{
		userID: userID,
		cfg:    cfg,
		det: NewDetector(Thresholds{
			High:            cfg.HighThreshold,
			Low:             cfg.LowThreshold,
			FreeFall:        cfg.FreeFallThreshold,
			FreeFallSamples: cfg.FreeFallSamples,
		}),
		sched:   scheduler.New(),
		alerter: alerter,
		escal:   escalate,
	}
	return m
}

// Start 开始监测
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return
	}
	m.state = StateMonitoring
	m.det.Reset()
	logger.Info("fall monitoring enabled", zap.Uint("user_id", m.userID))
}

// Stop 停止监测；取消未决的确认窗口（不升级）
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	task := m.timeout
	m.timeout = nil
	m.pending = nil
	m.state = StateIdle
	m.mu.Unlock()

	if task != nil {
		task.Cancel()
		if m.alerter != nil {
			m.alerter.ClearFallPrompt(context.Background(), m.userID)
		}
	}
	logger.Info("fall monitoring disabled", zap.Uint("user_id", m.userID))
}

// Close 释放监测器的后台任务
func (m *Monitor) Close() {
	m.Stop()
	m.sched.Stop()
}

// State 当前状态机状态
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending 待确认事件（没有时为 nil）
func (m *Monitor) Pending() *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	cp := *m.pending
	return &cp
}

// Sample 喂入一个加速度采样。确认窗口开启期间的采样被忽略
// （不会叠加第二个窗口）。
func (m *Monitor) Sample(magnitude float64) {
	m.mu.Lock()
	if m.state != StateMonitoring {
		m.mu.Unlock()
		return
	}
	if !m.det.Feed(magnitude) {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	event := &Event{
		Magnitude:  magnitude,
		DetectedAt: now,
		Deadline:   now.Add(m.cfg.ConfirmWindow),
	}
	m.state = StateConfirmationPending
	m.pending = event
	m.timeout = m.sched.OnceAfter(m.cfg.ConfirmWindow, scheduler.FuncJob(m.onTimeout))
	m.mu.Unlock()

	logger.Warn("fall suspected, confirmation window open",
		zap.Uint("user_id", m.userID),
		zap.Float64("magnitude", magnitude),
		zap.Time("deadline", event.Deadline))
	if m.alerter != nil {
		m.alerter.RaiseFallPrompt(context.Background(), m.userID, event.Deadline)
	}
}

// Confirm 用户确认"我没事"，解除确认窗口。
// 窗口已超时升级或根本没有窗口时返回 ErrNothingPending。
func (m *Monitor) Confirm() error {
	m.mu.Lock()
	if m.state != StateConfirmationPending {
		state := m.state
		m.mu.Unlock()
		if state == StateIdle {
			return ErrNotMonitoring
		}
		return ErrNothingPending
	}
	task := m.timeout
	m.timeout = nil
	m.pending = nil
	m.state = StateMonitoring
	m.det.Reset()
	m.mu.Unlock()

	// 竞争点：超时任务可能已在执行。Cancel 等它退出，
	// onTimeout 里会发现状态已被抢先改走而放弃升级。
	if task != nil {
		task.Cancel()
	}
	if m.alerter != nil {
		m.alerter.ClearFallPrompt(context.Background(), m.userID)
	}
	if met := metrics.Global(); met != nil {
		met.FallFalseAlarm()
	}
	logger.Info("fall confirmation received, window dismissed",
		zap.Uint("user_id", m.userID))
	return nil
}

// ConfirmVoice 语音确认：文本命中关键词才解除
func (m *Monitor) ConfirmVoice(text string) error {
	if !MatchAffirmative(text) {
		return ErrNothingPending
	}
	return m.Confirm()
}

// onTimeout 确认窗口到期。状态仍是待确认才升级；
// 被 Confirm 抢先时这里已经不是待确认，直接放弃。
func (m *Monitor) onTimeout(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateConfirmationPending {
		m.mu.Unlock()
		return
	}
	m.timeout = nil
	m.pending = nil
	m.state = StateMonitoring
	m.det.Reset()
	m.mu.Unlock()

	if m.alerter != nil {
		m.alerter.ClearFallPrompt(ctx, m.userID)
	}
	if met := metrics.Global(); met != nil {
		met.FallEscalated()
	}
	logger.Warn("fall confirmation window expired, escalating to SOS",
		zap.Uint("user_id", m.userID))
	if err := m.escal(ctx, m.userID); err != nil {
		logger.Error("fall escalation failed",
			zap.Uint("user_id", m.userID),
			zap.Error(err))
	}
}
