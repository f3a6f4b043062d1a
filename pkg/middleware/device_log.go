package middleware

import (
	"SafeBuddyGuardian/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"
)

// DeviceInfoMiddleware 解析 User-Agent 并注入设备信息。
// SOS 事件创建时会把平台/系统快照落到事件记录上，便于事后排查
// 激活来自哪类设备。
func DeviceInfoMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ua := user_agent.New(c.GetHeader("User-Agent"))
		browser, version := ua.Browser()

		device := ua.Platform()
		if device == "" {
			device = "unknown"
		}
		c.Set("device_platform", device)
		c.Set("device_os", ua.OS())
		c.Set("device_browser", browser+" "+version)
		c.Set("device_mobile", ua.Mobile())

		c.Next()

		// 仅记录会改变状态的请求
		if c.Request.Method != "GET" && c.Request.Method != "OPTIONS" {
			logger.Debug("request handled",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.String("ip", c.ClientIP()),
				zap.String("platform", device),
				zap.String("os", ua.OS()),
			)
		}
	}
}

// DeviceDescription 从上下文取出设备描述串
func DeviceDescription(c *gin.Context) string {
	platform := c.GetString("device_platform")
	os := c.GetString("device_os")
	if os == "" {
		return platform
	}
	return platform + " / " + os
}
