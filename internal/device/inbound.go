package device

import (
	"strconv"
	"time"

	"SafeBuddyGuardian/internal/falldetect"
	"SafeBuddyGuardian/internal/sos"
	"SafeBuddyGuardian/pkg/logger"
	ws "SafeBuddyGuardian/pkg/websocket"

	"go.uber.org/zap"
)

// BindInbound 把设备上行消息接到跌倒监测和定位缓存。
// 启动时调用一次，注册到设备通道的回调上。
func BindInbound(hub *ws.Hub, monitors *falldetect.Registry, locator *sos.DeviceLocator) {
	hub.OnInbound(func(userID string, msg ws.InboundMessage) {
		uid64, err := strconv.ParseUint(userID, 10, 64)
		if err != nil {
			logger.Warn("device message with bad user id", zap.String("user_id", userID))
			return
		}
		uid := uint(uid64)

		switch msg.Type {
		case ws.TypeMotion:
			monitors.Sample(uid, msg.Magnitude)
		case ws.TypePosition:
			at := time.Now()
			if msg.Timestamp > 0 {
				at = time.UnixMilli(msg.Timestamp)
			}
			locator.Report(uid, sos.Position{
				Latitude:  msg.Latitude,
				Longitude: msg.Longitude,
				Accuracy:  msg.Accuracy,
				Battery:   msg.Battery,
				At:        at,
			})
		case ws.TypeConfirm:
			if m := monitors.Get(uid); m != nil {
				if err := m.Confirm(); err != nil {
					logger.Debug("device confirm with no pending window",
						zap.Uint("user_id", uid))
				}
			}
		default:
			logger.Debug("unknown device message type",
				zap.Uint("user_id", uid),
				zap.String("type", msg.Type))
		}
	})
}
