package handlers

import (
	"net/http"

	"SafeBuddyGuardian/pkg/middleware"
	"SafeBuddyGuardian/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	sys := r.Group("/system")
	{
		sys.GET("/health", h.HealthCheck)
		sys.GET("/device-channel", h.DeviceChannelStats)
		if h.monitor != nil {
			sys.GET("/stats", h.SystemStats)
		}
		if h.limiter != nil {
			sys.POST("/rate-limiter/config", h.UpdateRateLimiterConfig)
		}
	}
}

// UpdateRateLimiterConfig 运行时更新限流配置
func (h *Handlers) UpdateRateLimiterConfig(c *gin.Context) {
	var cfg middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	if err := h.limiter.SetConfig(cfg); err != nil {
		response.Fail(c, "invalid rate limit", nil)
		return
	}
	response.Success(c, "rate limiter config updated", nil)
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// DeviceChannelStats 设备通道连接统计
func (h *Handlers) DeviceChannelStats(c *gin.Context) {
	response.Success(c, "ok", h.devices.Stats())
}

// SystemStats 主机采样快照，limit 控制返回的历史条数
func (h *Handlers) SystemStats(c *gin.Context) {
	latest, ok := h.monitor.Latest()
	if !ok {
		response.Success(c, "no samples yet", nil)
		return
	}
	limit := cast.ToInt(c.Query("limit"))
	response.Success(c, "ok", gin.H{
		"latest":  latest,
		"history": h.monitor.History(limit),
	})
}
