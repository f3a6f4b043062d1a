package sos

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/config"
	pkgerr "SafeBuddyGuardian/pkg/errors"
	"SafeBuddyGuardian/pkg/notification"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))
	return db
}

func testSOSConfig() config.SOSConfig {
	return config.SOSConfig{
		StreamInterval:     20 * time.Millisecond,
		NotifyRetryBackoff: 30 * time.Millisecond,
		DialStagger:        10 * time.Millisecond,
		MaxActiveAge:       time.Hour,
		DefaultBattery:     100,
		EmergencyNumbers:   []string{"112", "100", "108", "1091"},
	}
}

// fakeSMSClient 前 failFirst 次发送失败，之后成功
type fakeSMSClient struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	sent      []string
}

func (f *fakeSMSClient) Send(_ context.Context, phone, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return fmt.Errorf("gateway unavailable")
	}
	f.sent = append(f.sent, phone)
	return nil
}

func (f *fakeSMSClient) delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeDialRecorder struct {
	mu      sync.Mutex
	numbers []string
}

func (f *fakeDialRecorder) dial(_ context.Context, _ uint, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.numbers = append(f.numbers, number)
	return nil
}

func (f *fakeDialRecorder) dialed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.numbers...)
}

func alwaysOnDriver(label string) Driver {
	return DriverFunc{Label: label}
}

func failingDriver(label string) Driver {
	return DriverFunc{Label: label, OnStart: func(context.Context) error {
		return fmt.Errorf("%s unavailable", label)
	}}
}

type managerFixture struct {
	db      *gorm.DB
	locator *DeviceLocator
	sms     *fakeSMSClient
	dials   *fakeDialRecorder
	mgr     *Manager
	user    *models.User
}

func newManagerFixture(t *testing.T, smsFailFirst int) *managerFixture {
	t.Helper()
	db := newTestDB(t)
	user := &models.User{Email: "asha@example.com", DisplayName: "Asha", Language: "en"}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.GuardianContact{
		UserID: user.ID, Name: "Ravi", Phone: "+91 98765 43210", IsPrimary: true,
	}).Error)

	sms := &fakeSMSClient{failFirst: smsFailFirst}
	dials := &fakeDialRecorder{}
	locator := NewDeviceLocator(time.Minute)
	cfg := testSOSConfig()
	mgr := NewManager(Deps{
		DB:      db,
		Config:  cfg,
		Locator: locator,
		Actuators: func(uint) (*Actuator, *Actuator) {
			return NewActuator("siren", alwaysOnDriver("tone"), nil),
				NewActuator("flashlight", alwaysOnDriver("torch"), nil)
		},
		Dialer: NewDialer(cfg.EmergencyNumbers, cfg.DialStagger, dials.dial),
		Dispatcher: NewDispatcher(nil,
			notification.NewSMSGateway(notification.SMSConfig{}, sms), nil, nil),
	})
	return &managerFixture{db: db, locator: locator, sms: sms, dials: dials, mgr: mgr, user: user}
}

func TestActivateManualTrigger(t *testing.T) {
	f := newManagerFixture(t, 0)
	battery := 80

	session, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{
		Trigger:  models.TriggerManual,
		Position: &Position{Latitude: 19.0760, Longitude: 72.8777, Accuracy: 12, Battery: &battery},
	})
	require.NoError(t, err)
	defer f.mgr.Deactivate(context.Background(), f.user.ID)

	incident := session.Incident()
	assert.Equal(t, models.IncidentActive, incident.Status)
	assert.Equal(t, models.TriggerManual, incident.TriggerMethod)
	assert.InDelta(t, 19.0760, incident.Latitude, 1e-9)
	assert.InDelta(t, 72.8777, incident.Longitude, 1e-9)
	require.NotNil(t, incident.BatteryLevel)
	assert.Equal(t, 80, *incident.BatteryLevel)

	// 各子系统异步收敛
	assert.Eventually(t, func() bool {
		o := session.Outcome()
		return o[SubsystemSiren] == StatusOk &&
			o[SubsystemFlashlight] == StatusOk &&
			o[SubsystemLocations] == StatusOk &&
			o[SubsystemNotifications] == StatusOk &&
			o[SubsystemCalls] == StatusOk
	}, 2*time.Second, 10*time.Millisecond)

	// 首条位置采样等于初始定位
	samples, err := models.ListLocations(f.db, incident.ID)
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	assert.InDelta(t, 19.0760, samples[0].Latitude, 1e-9)
	assert.InDelta(t, 72.8777, samples[0].Longitude, 1e-9)

	// 升级呼叫序列：首号立即、其余错峰
	assert.Eventually(t, func() bool {
		return len(f.dials.dialed()) == 4
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"112", "100", "108", "1091"}, f.dials.dialed())

	assert.Equal(t, 1, f.sms.delivered())
}

func TestActivateTwiceReturnsAlreadyActive(t *testing.T) {
	f := newManagerFixture(t, 0)
	pos := &Position{Latitude: 19.0760, Longitude: 72.8777}

	_, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{Position: pos})
	require.NoError(t, err)
	defer f.mgr.Deactivate(context.Background(), f.user.ID)

	_, err = f.mgr.Activate(context.Background(), f.user, ActivateRequest{Position: pos})
	require.ErrorIs(t, err, ErrAlreadyActive)
	assert.Equal(t, CodeAlreadyActive, pkgerr.GetCode(err))

	var count int64
	f.db.Model(&models.SOSIncident{}).Where("user_id = ?", f.user.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestActivateWithoutLocationFails(t *testing.T) {
	f := newManagerFixture(t, 0)

	_, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{})
	require.ErrorIs(t, err, ErrLocationUnavailable)

	var count int64
	f.db.Model(&models.SOSIncident{}).Count(&count)
	assert.Zero(t, count)
}

func TestDeactivateStopsStreamingAndResolves(t *testing.T) {
	f := newManagerFixture(t, 0)

	session, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{
		Position: &Position{Latitude: 19.0760, Longitude: 72.8777},
	})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Deactivate(context.Background(), f.user.ID))

	stored, err := models.GetIncident(f.db, f.user.ID, session.Incident().ID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)

	// 解除后位置流停止
	before, err := models.ListLocations(f.db, stored.ID)
	require.NoError(t, err)
	time.Sleep(5 * testSOSConfig().StreamInterval)
	after, err := models.ListLocations(f.db, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))

	// 重复解除
	err = f.mgr.Deactivate(context.Background(), f.user.ID)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestDeactivateThenReactivate(t *testing.T) {
	f := newManagerFixture(t, 0)
	pos := &Position{Latitude: 19.0760, Longitude: 72.8777}

	_, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{Position: pos})
	require.NoError(t, err)
	require.NoError(t, f.mgr.Deactivate(context.Background(), f.user.ID))

	second, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{Position: pos})
	require.NoError(t, err)
	defer f.mgr.Deactivate(context.Background(), f.user.ID)
	assert.Equal(t, models.IncidentActive, second.Incident().Status)
}

func TestLocationLoopSelfHeals(t *testing.T) {
	f := newManagerFixture(t, 0)

	session, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{
		Position: &Position{Latitude: 19.0760, Longitude: 72.8777},
	})
	require.NoError(t, err)
	defer f.mgr.Deactivate(context.Background(), f.user.ID)

	// 让缓存读数过期，几个 tick 取不到定位
	f.locator.Report(f.user.ID, Position{Latitude: 19.0761, Longitude: 72.8778, At: time.Now().Add(-2 * time.Minute)})
	time.Sleep(3 * testSOSConfig().StreamInterval)

	// 设备恢复上报后循环继续追加采样
	f.locator.Report(f.user.ID, Position{Latitude: 19.0999, Longitude: 72.9000})
	assert.Eventually(t, func() bool {
		samples, err := models.ListLocations(f.db, session.Incident().ID)
		if err != nil || len(samples) == 0 {
			return false
		}
		last := samples[len(samples)-1]
		return last.Latitude > 19.09
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationSingleRetry(t *testing.T) {
	// 首轮全败，固定退避后恰好重试一轮并成功
	f := newManagerFixture(t, 1)

	session, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{
		Position: &Position{Latitude: 19.0760, Longitude: 72.8777},
	})
	require.NoError(t, err)
	defer f.mgr.Deactivate(context.Background(), f.user.ID)

	assert.Eventually(t, func() bool {
		return session.Outcome()[SubsystemNotifications] == StatusOk
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.sms.delivered())

	stored, err := models.GetIncident(f.db, f.user.ID, session.Incident().ID)
	require.NoError(t, err)
	assert.True(t, stored.NotificationsSent)
}

func TestNotificationRetryExhausted(t *testing.T) {
	// 两轮都失败后放弃，不再有第三次尝试
	f := newManagerFixture(t, 100)

	session, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{
		Position: &Position{Latitude: 19.0760, Longitude: 72.8777},
	})
	require.NoError(t, err)
	defer f.mgr.Deactivate(context.Background(), f.user.ID)

	assert.Eventually(t, func() bool {
		return session.Outcome()[SubsystemNotifications] == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(3 * testSOSConfig().NotifyRetryBackoff)
	f.sms.mu.Lock()
	calls := f.sms.calls
	f.sms.mu.Unlock()
	assert.Equal(t, 2, calls)

	stored, err := models.GetIncident(f.db, f.user.ID, session.Incident().ID)
	require.NoError(t, err)
	assert.False(t, stored.NotificationsSent)
}

func TestActiveRehydratesFromStore(t *testing.T) {
	f := newManagerFixture(t, 0)

	// 直接落库一条 active 事件，模拟进程重启后内存丢失
	battery := 55
	incident := &models.SOSIncident{
		UserID: f.user.ID, TriggerMethod: models.TriggerManual,
		Latitude: 19.0760, Longitude: 72.8777, BatteryLevel: &battery,
	}
	require.NoError(t, models.CreateIncident(f.db, incident))

	session, err := f.mgr.Active(context.Background(), f.user)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, incident.Reference, session.Reference())
	defer f.mgr.Deactivate(context.Background(), f.user.ID)

	// 重挂不产生新事件
	var count int64
	f.db.Model(&models.SOSIncident{}).Where("user_id = ?", f.user.ID).Count(&count)
	assert.EqualValues(t, 1, count)

	// 位置流重启
	assert.Eventually(t, func() bool {
		samples, err := models.ListLocations(f.db, incident.ID)
		return err == nil && len(samples) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestActiveReturnsNilWhenIdle(t *testing.T) {
	f := newManagerFixture(t, 0)
	session, err := f.mgr.Active(context.Background(), f.user)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestCallEmergencyRequiresActiveSession(t *testing.T) {
	f := newManagerFixture(t, 0)
	_, err := f.mgr.CallEmergency(context.Background(), f.user, nil)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestBatteryDefaultsWhenUnreadable(t *testing.T) {
	f := newManagerFixture(t, 0)

	session, err := f.mgr.Activate(context.Background(), f.user, ActivateRequest{
		Position: &Position{Latitude: 19.0760, Longitude: 72.8777},
	})
	require.NoError(t, err)
	defer f.mgr.Deactivate(context.Background(), f.user.ID)

	require.NotNil(t, session.Incident().BatteryLevel)
	assert.Equal(t, testSOSConfig().DefaultBattery, *session.Incident().BatteryLevel)
}
