package falldetect

import (
	"context"
	"sync"
	"testing"
	"time"

	"SafeBuddyGuardian/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFallConfig() config.FallConfig {
	return config.FallConfig{
		HighThreshold:     12,
		LowThreshold:      3,
		FreeFallThreshold: 1.5,
		FreeFallSamples:   4,
		ConfirmWindow:     50 * time.Millisecond,
	}
}

type recordingAlerter struct {
	mu      sync.Mutex
	raised  int
	cleared int
}

func (a *recordingAlerter) RaiseFallPrompt(_ context.Context, _ uint, _ time.Time) {
	a.mu.Lock()
	a.raised++
	a.mu.Unlock()
}

func (a *recordingAlerter) ClearFallPrompt(_ context.Context, _ uint) {
	a.mu.Lock()
	a.cleared++
	a.mu.Unlock()
}

func (a *recordingAlerter) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raised, a.cleared
}

type escalationCounter struct {
	mu    sync.Mutex
	count int
}

func (e *escalationCounter) escalate(context.Context, uint) error {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()
	return nil
}

func (e *escalationCounter) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func TestDetectorImpactEdge(t *testing.T) {
	d := NewDetector(Thresholds{High: 12, Low: 3, FreeFall: 1.5, FreeFallSamples: 4})

	// 正常活动不触发
	for _, m := range []float64{9.8, 10.2, 9.5, 11.0} {
		assert.False(t, d.Feed(m))
	}
	// 冲击后骤降：13 → 2
	assert.False(t, d.Feed(13.0))
	assert.True(t, d.Feed(2.0))
}

func TestDetectorSustainedFreeFall(t *testing.T) {
	d := NewDetector(Thresholds{High: 12, Low: 3, FreeFall: 1.5, FreeFallSamples: 4})

	assert.False(t, d.Feed(1.0))
	assert.False(t, d.Feed(0.8))
	assert.False(t, d.Feed(1.2))
	assert.True(t, d.Feed(0.9)) // 第 4 个连续低采样
}

func TestDetectorFreeFallStreakResets(t *testing.T) {
	d := NewDetector(Thresholds{High: 12, Low: 3, FreeFall: 1.5, FreeFallSamples: 4})

	assert.False(t, d.Feed(1.0))
	assert.False(t, d.Feed(1.0))
	assert.False(t, d.Feed(9.8)) // 中断
	assert.False(t, d.Feed(1.0))
	assert.False(t, d.Feed(1.0))
	assert.False(t, d.Feed(1.0))
	assert.True(t, d.Feed(1.0))
}

func TestMonitorEscalatesOnTimeout(t *testing.T) {
	alerter := &recordingAlerter{}
	esc := &escalationCounter{}
	m := NewMonitor(7, testFallConfig(), alerter, esc.escalate)
	defer m.Close()

	m.Start()
	m.Sample(13.0)
	m.Sample(2.0)
	require.Equal(t, StateConfirmationPending, m.State())
	require.NotNil(t, m.Pending())

	assert.Eventually(t, func() bool {
		return esc.total() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateMonitoring, m.State())
	assert.Nil(t, m.Pending())

	raised, cleared := alerter.counts()
	assert.Equal(t, 1, raised)
	assert.Equal(t, 1, cleared)
}

func TestMonitorConfirmPreventsEscalation(t *testing.T) {
	esc := &escalationCounter{}
	m := NewMonitor(7, testFallConfig(), &recordingAlerter{}, esc.escalate)
	defer m.Close()

	m.Start()
	m.Sample(13.0)
	m.Sample(2.0)
	require.Equal(t, StateConfirmationPending, m.State())

	require.NoError(t, m.Confirm())
	assert.Equal(t, StateMonitoring, m.State())

	// 窗口本应到期的时刻之后也没有升级
	time.Sleep(3 * testFallConfig().ConfirmWindow)
	assert.Zero(t, esc.total())
}

func TestMonitorLateConfirmRejected(t *testing.T) {
	esc := &escalationCounter{}
	m := NewMonitor(7, testFallConfig(), &recordingAlerter{}, esc.escalate)
	defer m.Close()

	m.Start()
	m.Sample(13.0)
	m.Sample(2.0)

	assert.Eventually(t, func() bool {
		return esc.total() == 1
	}, time.Second, 5*time.Millisecond)

	err := m.Confirm()
	require.ErrorIs(t, err, ErrNothingPending)
	assert.Equal(t, 1, esc.total())
}

func TestMonitorIgnoresSamplesWhilePending(t *testing.T) {
	esc := &escalationCounter{}
	alerter := &recordingAlerter{}
	m := NewMonitor(7, testFallConfig(), alerter, esc.escalate)
	defer m.Close()

	m.Start()
	m.Sample(13.0)
	m.Sample(2.0)
	first := m.Pending()
	require.NotNil(t, first)

	// 窗口期间再喂疑似跌倒的采样，不叠加第二个窗口
	m.Sample(13.0)
	m.Sample(2.0)
	second := m.Pending()
	require.NotNil(t, second)
	assert.Equal(t, first.DetectedAt, second.DetectedAt)
	raised, _ := alerter.counts()
	assert.Equal(t, 1, raised)
}

func TestMonitorConfirmWithoutWindow(t *testing.T) {
	m := NewMonitor(7, testFallConfig(), nil, (&escalationCounter{}).escalate)
	defer m.Close()

	require.ErrorIs(t, m.Confirm(), ErrNotMonitoring)
	m.Start()
	require.ErrorIs(t, m.Confirm(), ErrNothingPending)
}

func TestMonitorStopCancelsWindow(t *testing.T) {
	esc := &escalationCounter{}
	m := NewMonitor(7, testFallConfig(), &recordingAlerter{}, esc.escalate)
	defer m.Close()

	m.Start()
	m.Sample(13.0)
	m.Sample(2.0)
	m.Stop()

	time.Sleep(3 * testFallConfig().ConfirmWindow)
	assert.Zero(t, esc.total())
	assert.Equal(t, StateIdle, m.State())
}

func TestMatchAffirmative(t *testing.T) {
	assert.True(t, MatchAffirmative("yes"))
	assert.True(t, MatchAffirmative("I'm fine, thanks"))
	assert.True(t, MatchAffirmative("Haan"))
	assert.True(t, MatchAffirmative("main theek hoon"))
	assert.False(t, MatchAffirmative("help"))
	assert.False(t, MatchAffirmative(""))
}

func TestRegistryRoutesSamples(t *testing.T) {
	esc := &escalationCounter{}
	r := NewRegistry(testFallConfig(), &recordingAlerter{}, esc.escalate)
	defer r.Close()

	r.Enable(1)
	r.Sample(1, 13.0)
	r.Sample(1, 2.0)
	assert.Equal(t, StateConfirmationPending, r.Get(1).State())

	// 未开启监测的用户采样被丢弃
	r.Sample(2, 13.0)
	r.Sample(2, 2.0)
	assert.Nil(t, r.Get(2))
}

func TestRegistryDisableStopsMonitor(t *testing.T) {
	esc := &escalationCounter{}
	r := NewRegistry(testFallConfig(), &recordingAlerter{}, esc.escalate)
	defer r.Close()

	r.Enable(1)
	r.Sample(1, 13.0)
	r.Sample(1, 2.0)
	r.Disable(1)

	time.Sleep(3 * testFallConfig().ConfirmWindow)
	assert.Zero(t, esc.total())
	assert.Nil(t, r.Get(1))
}
