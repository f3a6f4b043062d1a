package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SafeBuddyGuardian/internal/device"
	"SafeBuddyGuardian/internal/falldetect"
	handlers "SafeBuddyGuardian/internal/handler"
	"SafeBuddyGuardian/internal/listeners"
	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/internal/sos"
	"SafeBuddyGuardian/pkg/backup"
	"SafeBuddyGuardian/pkg/cache"
	"SafeBuddyGuardian/pkg/config"
	constants "SafeBuddyGuardian/pkg/constant"
	"SafeBuddyGuardian/pkg/i18n"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/metrics"
	"SafeBuddyGuardian/pkg/middleware"
	"SafeBuddyGuardian/pkg/notification"
	"SafeBuddyGuardian/pkg/scheduler"
	"SafeBuddyGuardian/pkg/sse"
	"SafeBuddyGuardian/pkg/util"
	ws "SafeBuddyGuardian/pkg/websocket"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// 1. 配置与日志
	if err := config.Load(); err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	cfg := config.GlobalConfig
	if err := logger.Init(cfg.Log); err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	// 2. 数据库
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode == "debug")
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	// 3. 缓存、指标、文案
	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Fatal("failed to init cache", zap.Error(err))
	}
	defer store.Close()

	met := metrics.NewMetrics()
	metrics.SetGlobal(met)

	sysMonitor := metrics.NewSystemMonitor(120, 30*time.Second)
	sysMonitor.Start()
	defer sysMonitor.Stop()

	trans, err := i18n.NewI18nSupport(cfg.DefaultLanguage)
	if err != nil {
		logger.Fatal("failed to load locales", zap.Error(err))
	}

	// 4. 设备通道与事件流
	devices := ws.NewHub(nil)
	defer devices.Close()
	events := sse.NewHub(30 * time.Second)
	gateway := device.NewGateway(devices)
	locator := sos.NewDeviceLocator(time.Minute)

	// 5. SOS 编排器
	dispatcher := sos.NewDispatcher(
		notification.NewFCM(cfg.FCM, nil),
		notification.NewSMSGateway(cfg.SMS, nil),
		notification.NewMailNotification(cfg.Mail),
		trans)
	manager := sos.NewManager(sos.Deps{
		DB:         db,
		Config:     cfg.SOS,
		Locator:    locator,
		Actuators:  gateway.Actuators,
		Dialer:     sos.NewDialer(cfg.SOS.EmergencyNumbers, cfg.SOS.DialStagger, gateway.Dial),
		Dispatcher: dispatcher,
		Events:     events,
		Store:      store,
	})

	// 6. 跌倒监测：确认窗口超时升级为 SOS
	monitors := falldetect.NewRegistry(cfg.Fall, gateway, func(ctx context.Context, userID uint) error {
		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			return err
		}
		_, err := manager.Activate(ctx, &user, sos.ActivateRequest{
			Trigger: models.TriggerFallDetection,
		})
		return err
	})
	defer monitors.Close()
	device.BindInbound(devices, monitors, locator)

	// 7. 信号监听
	listeners.InitUserListeners()
	listeners.InitIncidentListeners()

	// 8. 定时任务：过期事件清扫 + 数据库备份
	cr := scheduler.NewCron(time.Local)
	if _, err := cr.AddWithCtx(cfg.SOS.SweepSchedule, func(ctx context.Context) {
		sweepStale(db, cfg.SOS.MaxActiveAge)
	}); err != nil {
		logger.Fatal("failed to schedule incident sweep", zap.Error(err))
	}
	if cfg.BackupEnabled {
		if err := backup.StartBackupScheduler(cr); err != nil {
			logger.Fatal("failed to schedule backup", zap.Error(err))
		}
	}
	cr.Start()
	defer cr.Stop()

	// 9. HTTP 服务
	switch cfg.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(metrics.Middleware(met))
	engine.Use(middleware.DeviceInfoMiddleware())
	engine.Use(middleware.LanguageMiddleware())

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	engine.Use(sessions.Sessions(constants.SessionField, sessionStore))

	limiterMW, err := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.RateLimit,
		AddHeaders: true,
		SkipPaths:  []string{"/metrics", cfg.APIPrefix + "/system/health"},
	}, memory.NewStore())
	if err != nil {
		logger.Fatal("failed to init rate limiter", zap.Error(err))
	}
	limiterMW.WithObserver(middleware.NewPrometheusObserver())
	engine.Use(limiterMW.Middleware())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewHandlers(handlers.Options{
		DB:       db,
		Manager:  manager,
		Monitors: monitors,
		Devices:  devices,
		Gateway:  gateway,
		Events:   events,
		Limiter:  limiterMW,
		Monitor:  sysMonitor,
		Idem: middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{
			TTL:   30 * time.Second,
			Store: middleware.NewCacheIdemStore(store),
		}),
	})
	h.Register(engine)

	srv := &http.Server{Addr: cfg.Addr, Handler: engine}
	go func() {
		logger.Info("SafeBuddy Guardian+ listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// 10. 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	logger.Info("SafeBuddy Guardian+ stopped")
}

// sweepStale 自动 resolve 超期未解除的事件（位置流水保留）
func sweepStale(db *gorm.DB, maxAge time.Duration) {
	n, err := models.SweepStaleIncidents(db, maxAge)
	if err != nil {
		logger.Warn("stale incident sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("stale incidents resolved", zap.Int64("count", n))
	}
}
