package handlers

import (
	"SafeBuddyGuardian/internal/models"
	ws "SafeBuddyGuardian/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// handleDeviceChannel 设备 WebSocket 通道：上行运动/位置/确认消息，
// 下行警报、拨号、提示命令。
func (h *Handlers) handleDeviceChannel(c *gin.Context) {
	user := models.CurrentUser(c)
	ws.HandleConnection(h.devices, c.Writer, c.Request, cast.ToString(user.ID))
}
