package sos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/cache"
	"SafeBuddyGuardian/pkg/config"
	pkgerr "SafeBuddyGuardian/pkg/errors"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/metrics"
	"SafeBuddyGuardian/pkg/scheduler"
	"SafeBuddyGuardian/pkg/sse"
	"SafeBuddyGuardian/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	CodeAlreadyActive = 40901
	CodeNotActive     = 40402
)

var (
	// ErrAlreadyActive 同一用户已有 active 事件，重复激活被拒绝
	ErrAlreadyActive = pkgerr.WithCode(CodeAlreadyActive, "an SOS incident is already active")
	// ErrNotActive 当前没有 active 事件可操作
	ErrNotActive = pkgerr.WithCode(CodeNotActive, "no active SOS incident")
)

// ActuatorFactory 按用户构造该用户设备的警报器和闪光灯开关
type ActuatorFactory func(userID uint) (siren, flashlight *Actuator)

// ActivateRequest 激活参数
type ActivateRequest struct {
	Trigger        string
	Position       *Position // 客户端随请求提供的初始定位，缺省时向 Locator 取
	Address        string
	DevicePlatform string
}

// Session 一次 active 事件的内存句柄，持有该事件的全部后台任务。
type Session struct {
	mu       sync.Mutex
	incident *models.SOSIncident // 头部快照，位置流会就地刷新
	user     *models.User
	outcome  *Outcome
	sched    *scheduler.Scheduler // 位置流、通知重试、错峰拨号都挂在这里
	siren    *Actuator
	flash    *Actuator
}

func (s *Session) Reference() string          { return s.incident.Reference }
func (s *Session) Outcome() map[string]Status { return s.outcome.Snapshot() }

// Incident 返回事件头部的一致性拷贝
func (s *Session) Incident() *models.SOSIncident {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.incident
	return &cp
}

func (s *Session) mutate(fn func(*models.SOSIncident)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.incident)
}

// Manager SOS 会话编排器。每个用户同时最多一个 active 会话，
// 激活后各子系统（警报、闪光、位置流、通知、呼叫）并发启动且互不阻断。
type Manager struct {
	db         *gorm.DB
	cfg        config.SOSConfig
	locator    Locator
	actuators  ActuatorFactory
	dialer     *Dialer
	dispatcher *Dispatcher
	events     *sse.Hub
	store      cache.Cache

	mu       sync.Mutex
	sessions map[uint]*Session
}

// Deps Manager 的装配依赖。events 和 store 可为 nil。
type Deps struct {
	DB         *gorm.DB
	Config     config.SOSConfig
	Locator    Locator
	Actuators  ActuatorFactory
	Dialer     *Dialer
	Dispatcher *Dispatcher
	Events     *sse.Hub
	Store      cache.Cache
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		db:         deps.DB,
		cfg:        deps.Config,
		locator:    deps.Locator,
		actuators:  deps.Actuators,
		dialer:     deps.Dialer,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		store:      deps.Store,
		sessions:   make(map[uint]*Session),
	}
}

// Activate 激活 SOS。定位不可得时整体失败（位置是事件的必要字段），
// 其余子系统在返回后异步收敛，结果见 Session.Outcome。
func (m *Manager) Activate(ctx context.Context, user *models.User, req ActivateRequest) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[user.ID]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	m.mu.Unlock()

	pos, err := m.resolvePosition(ctx, user.ID, req.Position)
	if err != nil {
		return nil, err
	}
	battery := pos.Battery
	if battery == nil {
		// 读不到电量时落库配置的替代值
		estimated := m.cfg.DefaultBattery
		battery = &estimated
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = models.TriggerManual
	}
	incident := &models.SOSIncident{
		UserID:         user.ID,
		TriggerMethod:  trigger,
		Latitude:       pos.Latitude,
		Longitude:      pos.Longitude,
		Accuracy:       pos.Accuracy,
		Address:        req.Address,
		BatteryLevel:   battery,
		DevicePlatform: req.DevicePlatform,
	}
	if err := models.CreateIncident(m.db, incident); err != nil {
		if errors.Is(err, models.ErrActiveIncidentExists) {
			return nil, ErrAlreadyActive
		}
		return nil, pkgerr.Wrap(err, "create incident")
	}

	session := m.newSession(user, incident)

	m.mu.Lock()
	if _, exists := m.sessions[user.ID]; exists {
		// 并发激活竞争：落库者为准，后来者回滚
		m.mu.Unlock()
		session.sched.Stop()
		if _, rerr := models.ResolveIncident(m.db, incident.ID); rerr != nil {
			logger.Error("rollback of racing incident failed", zap.Error(rerr))
		}
		return nil, ErrAlreadyActive
	}
	m.sessions[user.ID] = session
	m.mu.Unlock()

	m.cacheActiveRef(user.ID, incident.Reference)
	util.Sig().Emit(models.SigIncidentCreate, incident, user)
	if met := metrics.Global(); met != nil {
		met.SOSActivated(trigger)
	}
	logger.Info("SOS activated",
		zap.Uint("user_id", user.ID),
		zap.String("incident", incident.Reference),
		zap.String("trigger", trigger))

	m.startSubsystems(session, pos, true)
	return session, nil
}

// Deactivate 解除 SOS：停掉所有后台任务、关闭执行器、resolve 事件。
// 没有 active 事件时返回 ErrNotActive。重复解除同样报 ErrNotActive。
func (m *Manager) Deactivate(ctx context.Context, userID uint) error {
	m.mu.Lock()
	session, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !ok {
		// 可能是重启后尚未重挂的孤儿事件
		incident, err := models.GetActiveIncident(m.db, userID)
		if err != nil {
			return pkgerr.Wrap(err, "lookup active incident")
		}
		if incident == nil {
			return ErrNotActive
		}
		return m.finishIncident(userID, incident, nil)
	}
	return m.finishIncident(userID, session.incident, session)
}

func (m *Manager) finishIncident(userID uint, incident *models.SOSIncident, session *Session) error {
	if session != nil {
		session.sched.Stop()
		bg := context.Background()
		if session.siren != nil {
			session.siren.Disable(bg)
		}
		if session.flash != nil {
			session.flash.Disable(bg)
		}
	}
	resolved, err := models.ResolveIncident(m.db, incident.ID)
	if err != nil {
		return pkgerr.Wrap(err, "resolve incident")
	}
	if m.store != nil {
		_ = m.store.Delete(context.Background(), activeRefKey(userID))
	}
	if resolved {
		util.Sig().Emit(models.SigIncidentResolve, incident)
		if met := metrics.Global(); met != nil {
			met.SOSResolved()
		}
		if m.events != nil {
			m.events.PublishJSON(incident.Reference, streamEvent{
				Type:      "resolved",
				Reference: incident.Reference,
				At:        time.Now(),
			})
		}
	}
	logger.Info("SOS deactivated",
		zap.Uint("user_id", userID),
		zap.String("incident", incident.Reference))
	return nil
}

// Active 返回用户当前的 active 会话。内存没有但库里有（进程重启）时
// 就地重挂：重启位置流和通知状态机，不产生新事件。都没有时返回 (nil, nil)。
func (m *Manager) Active(ctx context.Context, user *models.User) (*Session, error) {
	m.mu.Lock()
	if session, ok := m.sessions[user.ID]; ok {
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	incident, err := models.GetActiveIncident(m.db, user.ID)
	if err != nil {
		return nil, pkgerr.Wrap(err, "lookup active incident")
	}
	if incident == nil {
		return nil, nil
	}

	session := m.newSession(user, incident)
	m.mu.Lock()
	if existing, ok := m.sessions[user.ID]; ok {
		m.mu.Unlock()
		session.sched.Stop()
		return existing, nil
	}
	m.sessions[user.ID] = session
	m.mu.Unlock()

	m.cacheActiveRef(user.ID, incident.Reference)
	logger.Info("SOS session rehydrated",
		zap.Uint("user_id", user.ID),
		zap.String("incident", incident.Reference))

	pos := Position{
		Latitude:  incident.Latitude,
		Longitude: incident.Longitude,
		Accuracy:  incident.Accuracy,
		Battery:   incident.BatteryLevel,
		At:        incident.CreatedAt,
	}
	m.rehydrateSubsystems(session, pos)
	return session, nil
}

// NotifyNow 立即向监护人派发一轮通知（显式触达端点用）
func (m *Manager) NotifyNow(ctx context.Context, user *models.User) (DispatchReport, error) {
	session, err := m.Active(ctx, user)
	if err != nil {
		return DispatchReport{}, err
	}
	if session == nil {
		return DispatchReport{}, ErrNotActive
	}
	guardians, err := models.ListGuardians(m.db, user.ID)
	if err != nil {
		return DispatchReport{}, pkgerr.Wrap(err, "list guardians")
	}
	report := m.dispatcher.NotifyGuardians(ctx, user, session.Incident(), guardians)
	m.applyDispatchReport(session, report)
	return report, nil
}

// CallEmergency 对指定号码（缺省为配置的升级序列）发起错峰呼叫
func (m *Manager) CallEmergency(ctx context.Context, user *models.User, numbers []string) ([]DialReceipt, error) {
	session, err := m.Active(ctx, user)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotActive
	}
	receipts := m.dialer.DialSequence(context.Background(), session.sched, user.ID, numbers)
	if err := models.MarkEmergencyServicesCalled(m.db, session.incident.ID); err != nil {
		logger.Warn("mark emergency services called failed", zap.Error(err))
	}
	session.mutate(func(inc *models.SOSIncident) { inc.EmergencyServicesCalled = true })
	session.outcome.set(SubsystemCalls, StatusOk)
	return receipts, nil
}

// AppendLocation 追加一条设备上报的位置（REST 通道），
// 同步刷新事件头部快照并推给订阅端。
func (m *Manager) AppendLocation(ctx context.Context, user *models.User, incidentID uint, pos Position) (*models.LocationSample, error) {
	incident, err := models.GetIncident(m.db, user.ID, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.Status != models.IncidentActive {
		return nil, ErrNotActive
	}
	if dl, ok := m.locator.(*DeviceLocator); ok {
		dl.Report(user.ID, pos)
	}
	sample, err := m.appendSample(incident.ID, incident.Reference, pos)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	session := m.sessions[user.ID]
	m.mu.Unlock()
	if session != nil && session.incident.ID == incident.ID {
		session.mutate(func(inc *models.SOSIncident) { applyHead(inc, pos) })
	}
	return sample, nil
}

func (m *Manager) resolvePosition(ctx context.Context, userID uint, given *Position) (Position, error) {
	if given != nil {
		if given.At.IsZero() {
			given.At = time.Now()
		}
		if dl, ok := m.locator.(*DeviceLocator); ok {
			dl.Report(userID, *given)
		}
		return *given, nil
	}
	if m.locator == nil {
		return Position{}, ErrLocationUnavailable
	}
	pos, err := m.locator.Current(ctx, userID)
	if err != nil {
		return Position{}, ErrLocationUnavailable
	}
	return pos, nil
}

func (m *Manager) newSession(user *models.User, incident *models.SOSIncident) *Session {
	var siren, flash *Actuator
	if m.actuators != nil {
		siren, flash = m.actuators(user.ID)
	}
	return &Session{
		incident: incident,
		user:     user,
		outcome:  newOutcome(),
		sched:    scheduler.New(),
		siren:    siren,
		flash:    flash,
	}
}

// startSubsystems 并发启动所有子系统。dial=true 时排队升级呼叫序列。
func (m *Manager) startSubsystems(s *Session, initial Position, dial bool) {
	bg := context.Background()

	go func() {
		status := StatusFailed
		if s.siren != nil {
			status = s.siren.Enable(bg)
		}
		m.setSubsystem(s, SubsystemSiren, status)
	}()
	go func() {
		status := StatusFailed
		if s.flash != nil {
			status = s.flash.Enable(bg)
		}
		m.setSubsystem(s, SubsystemFlashlight, status)
	}()

	m.startLocationLoop(s, initial)
	go m.notifyWithRetry(s)

	if dial {
		go func() {
			receipts := m.dialer.DialSequence(bg, s.sched, s.user.ID, nil)
			if err := models.MarkEmergencyServicesCalled(m.db, s.incident.ID); err != nil {
				logger.Warn("mark emergency services called failed", zap.Error(err))
			}
			s.mutate(func(inc *models.SOSIncident) { inc.EmergencyServicesCalled = true })
			m.setSubsystem(s, SubsystemCalls, StatusOk)
			logger.Info("emergency call sequence queued",
				zap.String("incident", s.incident.Reference),
				zap.Int("numbers", len(receipts)))
		}()
	}
}

// rehydrateSubsystems 重启位置流与通知状态机；呼叫序列不重复排队。
func (m *Manager) rehydrateSubsystems(s *Session, head Position) {
	bg := context.Background()
	go func() {
		status := StatusFailed
		if s.siren != nil {
			status = s.siren.Enable(bg)
		}
		m.setSubsystem(s, SubsystemSiren, status)
	}()
	go func() {
		status := StatusFailed
		if s.flash != nil {
			status = s.flash.Enable(bg)
		}
		m.setSubsystem(s, SubsystemFlashlight, status)
	}()

	m.startLocationLoop(s, head)

	inc := s.Incident()
	if inc.NotificationsSent {
		m.setSubsystem(s, SubsystemNotifications, StatusOk)
	} else {
		go m.notifyWithRetry(s)
	}
	if inc.EmergencyServicesCalled {
		m.setSubsystem(s, SubsystemCalls, StatusOk)
	}
}

// startLocationLoop 位置流：首个 tick 落初始定位，之后每个周期向
// Locator 取读数。单次失败只跳过该 tick，循环自愈。
func (m *Manager) startLocationLoop(s *Session, initial Position) {
	first := true
	s.sched.Every(m.cfg.StreamInterval, scheduler.FuncJob(func(ctx context.Context) {
		var pos Position
		if first {
			first = false
			pos = initial
		} else {
			p, err := m.locator.Current(ctx, s.user.ID)
			if err != nil {
				logger.Debug("location read skipped",
					zap.String("incident", s.incident.Reference),
					zap.Error(err))
				return
			}
			pos = p
		}
		if err := m.storeSampleRow(s.incident.ID, s.incident.Reference, pos); err != nil {
			logger.Warn("location sample store failed",
				zap.String("incident", s.incident.Reference),
				zap.Error(err))
			return
		}
		s.mutate(func(inc *models.SOSIncident) { applyHead(inc, pos) })
		m.setSubsystem(s, SubsystemLocations, StatusOk)
	}))
}

// notifyWithRetry 通知状态机：一轮全失败时，固定退避后恰好重试一轮。
func (m *Manager) notifyWithRetry(s *Session) {
	ctx := context.Background()
	guardians, err := models.ListGuardians(m.db, s.user.ID)
	if err != nil {
		logger.Error("list guardians failed", zap.Error(err))
		m.setSubsystem(s, SubsystemNotifications, StatusFailed)
		return
	}
	report := m.dispatcher.NotifyGuardians(ctx, s.user, s.Incident(), guardians)
	if report.AnyDelivered() {
		m.applyDispatchReport(s, report)
		return
	}
	logger.Warn("guardian notification failed, scheduling single retry",
		zap.String("incident", s.incident.Reference),
		zap.Duration("backoff", m.cfg.NotifyRetryBackoff))
	s.sched.OnceAfter(m.cfg.NotifyRetryBackoff, scheduler.FuncJob(func(ctx context.Context) {
		retry := m.dispatcher.NotifyGuardians(ctx, s.user, s.Incident(), guardians)
		m.applyDispatchReport(s, retry)
		if !retry.AnyDelivered() {
			logger.Error("guardian notification retry exhausted",
				zap.String("incident", s.incident.Reference))
		}
	}))
}

func (m *Manager) applyDispatchReport(s *Session, report DispatchReport) {
	switch {
	case report.Delivered > 0 && report.Failed == 0:
		m.setSubsystem(s, SubsystemNotifications, StatusOk)
	case report.Delivered > 0:
		m.setSubsystem(s, SubsystemNotifications, StatusPartial)
	default:
		m.setSubsystem(s, SubsystemNotifications, StatusFailed)
		return
	}
	if !s.Incident().NotificationsSent {
		if err := models.MarkNotificationsSent(m.db, s.incident.ID); err != nil {
			logger.Warn("mark notifications sent failed", zap.Error(err))
			return
		}
		s.mutate(func(inc *models.SOSIncident) { inc.NotificationsSent = true })
	}
}

func (m *Manager) setSubsystem(s *Session, subsystem string, status Status) {
	s.outcome.set(subsystem, status)
	if met := metrics.Global(); met != nil {
		met.SubsystemOutcome(subsystem, string(status))
	}
	if m.events != nil {
		m.events.PublishJSON(s.incident.Reference, streamEvent{
			Type:      "subsystem",
			Reference: s.incident.Reference,
			Subsystem: subsystem,
			Status:    string(status),
			At:        time.Now(),
		})
	}
}

// applyHead 用最新采样刷新事件头部快照
func applyHead(inc *models.SOSIncident, pos Position) {
	inc.Latitude = pos.Latitude
	inc.Longitude = pos.Longitude
	inc.Accuracy = pos.Accuracy
	if pos.Battery != nil {
		inc.BatteryLevel = pos.Battery
	}
}

func (m *Manager) storeSampleRow(incidentID uint, ref string, pos Position) error {
	_, err := m.appendSample(incidentID, ref, pos)
	return err
}

// appendSample 落一条位置采样、刷新头部行并推给订阅端
func (m *Manager) appendSample(incidentID uint, ref string, pos Position) (*models.LocationSample, error) {
	sample := &models.LocationSample{
		IncidentID:   incidentID,
		Latitude:     pos.Latitude,
		Longitude:    pos.Longitude,
		Accuracy:     pos.Accuracy,
		BatteryLevel: pos.Battery,
	}
	if err := models.AppendLocation(m.db, sample); err != nil {
		return nil, pkgerr.Wrap(err, "append location")
	}
	if err := models.UpdateIncidentPosition(m.db, incidentID, pos.Latitude, pos.Longitude, pos.Accuracy, pos.Battery); err != nil {
		return nil, pkgerr.Wrap(err, "update incident position")
	}
	if met := metrics.Global(); met != nil {
		met.LocationSampleAppended()
	}
	if m.events != nil {
		m.events.PublishJSON(ref, streamEvent{
			Type:      "location",
			Reference: ref,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Accuracy:  pos.Accuracy,
			Battery:   pos.Battery,
			At:        time.Now(),
		})
	}
	return sample, nil
}

// streamEvent SSE 推给监护端看板的事件
type streamEvent struct {
	Type      string    `json:"type"`
	Reference string    `json:"reference"`
	Subsystem string    `json:"subsystem,omitempty"`
	Status    string    `json:"status,omitempty"`
	Latitude  float64   `json:"latitude,omitempty"`
	Longitude float64   `json:"longitude,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Battery   *int      `json:"batteryLevel,omitempty"`
	At        time.Time `json:"at"`
}

func (m *Manager) cacheActiveRef(userID uint, ref string) {
	if m.store == nil {
		return
	}
	if err := m.store.Set(context.Background(), activeRefKey(userID), ref, m.cfg.MaxActiveAge); err != nil {
		logger.Debug("cache active ref failed", zap.Error(err))
	}
}

func activeRefKey(userID uint) string {
	return fmt.Sprintf("sos:active:%d", userID)
}
