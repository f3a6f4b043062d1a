package sos

import (
	"context"
	"sync"
	"time"

	"SafeBuddyGuardian/internal/models"
	"SafeBuddyGuardian/pkg/i18n"
	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/metrics"
	"SafeBuddyGuardian/pkg/notification"

	"go.uber.org/zap"
)

// 通知通道名
const (
	ChannelPush     = "push"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// ChannelResult 单个联系人 × 单个通道的派发结果
type ChannelResult struct {
	Guardian string `json:"guardian"`
	Channel  string `json:"channel"`
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped,omitempty"` // 联系人缺该通道地址
	Link     string `json:"link,omitempty"`    // 深链通道：给人工兜底用
	Error    string `json:"error,omitempty"`
}

// DispatchReport 一轮派发的汇总
type DispatchReport struct {
	Results   []ChannelResult `json:"results"`
	Delivered int             `json:"delivered"`
	Failed    int             `json:"failed"`
	At        time.Time       `json:"at"`
}

// AnyDelivered 至少一个通道成功
func (r DispatchReport) AnyDelivered() bool { return r.Delivered > 0 }

// Dispatcher 监护人通知派发器。联系人 × 通道逐格独立：
// 任何一格失败不阻断其余格，尽力把消息送出去。
type Dispatcher struct {
	push  *notification.FCM
	sms   *notification.SMSGateway
	mail  *notification.MailNotification
	trans *i18n.I18nSupport
}

func NewDispatcher(push *notification.FCM, sms *notification.SMSGateway, mail *notification.MailNotification, trans *i18n.I18nSupport) *Dispatcher {
	return &Dispatcher{push: push, sms: sms, mail: mail, trans: trans}
}

// texts 按用户语言本地化消息文案
func (d *Dispatcher) texts(lang string) notification.MessageTexts {
	if d.trans == nil {
		return notification.DefaultTexts()
	}
	return notification.MessageTexts{
		Banner:        d.trans.T(lang, "sos.banner", nil),
		NeedsHelp:     d.trans.T(lang, "sos.needs_help", map[string]interface{}{"Name": "{{name}}"}),
		TimeLabel:     d.trans.T(lang, "sos.time", nil),
		LocationLabel: d.trans.T(lang, "sos.location", nil),
		CoordsLabel:   d.trans.T(lang, "sos.coordinates", nil),
		BatteryLabel:  d.trans.T(lang, "sos.battery", nil),
	}
}

func (d *Dispatcher) subject(lang, name string) string {
	if d.trans == nil {
		return "Emergency alert from " + name
	}
	return d.trans.T(lang, "sos.email_subject", map[string]interface{}{"Name": name})
}

// NotifyGuardians 向所有监护人并发派发紧急消息，返回逐格结果。
// 没有任何监护人时视为全部失败（Delivered=0）。
func (d *Dispatcher) NotifyGuardians(ctx context.Context, user *models.User, incident *models.SOSIncident, guardians []models.GuardianContact) DispatchReport {
	message := notification.FormatEmergencyMessage(
		d.texts(user.Language), user.DisplayName, incident.CreatedAt,
		incident.Latitude, incident.Longitude, incident.BatteryLevel)
	subject := d.subject(user.Language, user.DisplayName)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []ChannelResult
	)
	record := func(r ChannelResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		if m := metrics.Global(); m != nil && !r.Skipped {
			outcome := "ok"
			if !r.OK {
				outcome = "failed"
			}
			m.NotifyChannelResult(r.Channel, outcome)
		}
	}

	for _, g := range guardians {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(d.pushOne(ctx, g, message))
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(d.smsOne(ctx, g, message))
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(d.whatsappOne(g, message))
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(d.emailOne(g, subject, message))
		}()
	}
	wg.Wait()

	report := DispatchReport{Results: results, At: time.Now()}
	for _, r := range results {
		if r.Skipped || r.Link != "" {
			// 深链只是人工兜底入口，不算送达
			continue
		}
		if r.OK {
			report.Delivered++
		} else {
			report.Failed++
		}
	}
	logger.Info("guardian notification dispatch finished",
		zap.String("incident", incident.Reference),
		zap.Int("guardians", len(guardians)),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed))
	return report
}

func (d *Dispatcher) pushOne(ctx context.Context, g models.GuardianContact, message string) ChannelResult {
	r := ChannelResult{Guardian: g.Name, Channel: ChannelPush}
	if d.push == nil || g.PushToken == "" {
		r.Skipped = true
		return r
	}
	if err := d.push.PushToToken(ctx, g.PushToken, "SafeBuddy", message, map[string]string{"type": "sos"}); err != nil {
		r.Error = err.Error()
		return r
	}
	r.OK = true
	return r
}

func (d *Dispatcher) smsOne(ctx context.Context, g models.GuardianContact, message string) ChannelResult {
	r := ChannelResult{Guardian: g.Name, Channel: ChannelSMS}
	if d.sms == nil || g.Phone == "" {
		r.Skipped = true
		return r
	}
	if err := d.sms.SendEmergency(ctx, g.Phone, message); err != nil {
		r.Error = err.Error()
		return r
	}
	r.OK = true
	return r
}

// whatsappOne 不直接发送，构造 wa.me 深链供客户端一键打开
func (d *Dispatcher) whatsappOne(g models.GuardianContact, message string) ChannelResult {
	r := ChannelResult{Guardian: g.Name, Channel: ChannelWhatsApp}
	if g.Phone == "" {
		r.Skipped = true
		return r
	}
	r.Link = notification.WhatsAppLink(g.Phone, message)
	r.OK = true
	return r
}

func (d *Dispatcher) emailOne(g models.GuardianContact, subject, message string) ChannelResult {
	r := ChannelResult{Guardian: g.Name, Channel: ChannelEmail}
	if d.mail == nil || g.Email == "" {
		r.Skipped = true
		return r
	}
	if err := d.mail.SendEmergencyEmail(g.Email, subject, message); err != nil {
		r.Error = err.Error()
		return r
	}
	r.OK = true
	return r
}
