package listeners

import (
	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/config"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/notification"
	"SafeBuddyGuardian/pkg/util"

	"go.uber.org/zap"
)

func InitUserListeners() {
	// register initialized listener - Send Welcome Email
	util.Sig().Connect(models.SigUserCreate, func(sender any, params ...any) {
		user := sender.(*models.User)
		if user.Email == "" {
			return
		}

		go func() {
			err := notification.NewMailNotification(config.GlobalConfig.Mail).
				SendWelcomeEmail(user.Email, user.DisplayName)
			if err != nil {
				logger.Warn("send mail failed", zap.Error(err))
			}
		}()
	})
}

// InitIncidentListeners 事件信号：激活/解除时给用户本人发确认邮件，
// 留下带外的书面痕迹（通知监护人走 dispatcher，不在这里）。
func InitIncidentListeners() {
	util.Sig().Connect(models.SigIncidentCreate, func(sender any, params ...any) {
		incident := sender.(*models.SOSIncident)
		if len(params) == 0 {
			return
		}
		user, ok := params[0].(*models.User)
		if !ok || user.Email == "" {
			return
		}

		go func() {
			body := "Your SOS was activated (" + incident.TriggerMethod + "). Reference: " + incident.Reference +
				"\nLive location: " + notification.MapsLink(incident.Latitude, incident.Longitude) + "\n"
			err := notification.NewMailNotification(config.GlobalConfig.Mail).
				SendEmergencyEmail(user.Email, "SOS activated", body)
			if err != nil {
				logger.Warn("send incident mail failed",
					zap.String("incident", incident.Reference),
					zap.Error(err))
			}
		}()
	})

	util.Sig().Connect(models.SigIncidentResolve, func(sender any, params ...any) {
		incident := sender.(*models.SOSIncident)
		logger.Info("incident resolved",
			zap.String("incident", incident.Reference),
			zap.Uint("user_id", incident.UserID))
	})
}
