package handlers

import (
	"SafeBuddyGuardian/internal/device"
	"SafeBuddyGuardian/internal/falldetect"
	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/internal/sos"
	"SafeBuddyGuardian/pkg/config"
	"SafeBuddyGuardian/pkg/metrics"
	"SafeBuddyGuardian/pkg/middleware"
	"SafeBuddyGuardian/pkg/sse"
	ws "SafeBuddyGuardian/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handlers struct {
	db       *gorm.DB
	manager  *sos.Manager
	monitors *falldetect.Registry
	devices  *ws.Hub
	gateway  *device.Gateway
	events   *sse.Hub
	limiter  *middleware.RateLimiter
	monitor  *metrics.SystemMonitor
	idem     gin.HandlerFunc // SOS 按钮连点保护，可为 nil
}

type Options struct {
	DB       *gorm.DB
	Manager  *sos.Manager
	Monitors *falldetect.Registry
	Devices  *ws.Hub
	Gateway  *device.Gateway
	Events   *sse.Hub
	Limiter  *middleware.RateLimiter
	Monitor  *metrics.SystemMonitor
	Idem     gin.HandlerFunc
}

func NewHandlers(opts Options) *Handlers {
	return &Handlers{
		db:       opts.DB,
		manager:  opts.Manager,
		monitors: opts.Monitors,
		devices:  opts.Devices,
		gateway:  opts.Gateway,
		events:   opts.Events,
		limiter:  opts.Limiter,
		monitor:  opts.Monitor,
		idem:     opts.Idem,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(config.GlobalConfig.APIPrefix)

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))

	h.registerSystemRoutes(r)
	h.registerAuthRoutes(r)
	h.registerSOSRoutes(r)
	h.registerGuardianRoutes(r)
	h.registerFallRoutes(r)
	h.registerDeviceRoutes(r)
}

// User Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	auth := r.Group(config.GlobalConfig.AuthPrefix)
	{
		auth.POST("/register", h.handleUserSignup)
		auth.POST("/login", h.handleUserSignin)
		auth.GET("/logout", h.handleUserLogout)
		auth.GET("/info", models.AuthRequired, h.handleUserInfo)
	}
}

// SOS Module
func (h *Handlers) registerSOSRoutes(r *gin.RouterGroup) {
	grp := r.Group("/sos", models.AuthRequired)
	{
		grp.POST("", h.handleCreateIncident)
		grp.GET("/active", h.handleGetActiveIncident)
		grp.PATCH("/:id", h.handleUpdateIncident)
		grp.GET("/:id", h.handleGetIncident)
		grp.POST("/:id/locations", h.handleAppendLocation)
		grp.GET("/:id/locations", h.handleListLocations)
		grp.POST("/:id/call-emergency", h.handleCallEmergency)
		grp.GET("/:id/stream", h.handleIncidentStream)
		if h.idem != nil {
			grp.POST("/:id/notify-guardians", h.idem, h.handleNotifyGuardians)
		} else {
			grp.POST("/:id/notify-guardians", h.handleNotifyGuardians)
		}
	}
}

// Guardian Module
func (h *Handlers) registerGuardianRoutes(r *gin.RouterGroup) {
	grp := r.Group("/guardians", models.AuthRequired)
	{
		grp.GET("", h.handleListGuardians)
		grp.POST("", h.handleCreateGuardian)
		grp.PATCH("/:id", h.handleUpdateGuardian)
		grp.DELETE("/:id", h.handleDeleteGuardian)
	}
}

// Fall-Detection Module
func (h *Handlers) registerFallRoutes(r *gin.RouterGroup) {
	grp := r.Group("/fall", models.AuthRequired)
	{
		grp.POST("/enable", h.handleFallEnable)
		grp.POST("/disable", h.handleFallDisable)
		grp.POST("/confirm", h.handleFallConfirm)
		grp.GET("/status", h.handleFallStatus)
	}
}

// Device Channel
func (h *Handlers) registerDeviceRoutes(r *gin.RouterGroup) {
	r.GET("/ws/device", models.AuthRequired, h.handleDeviceChannel)
}
