package notification

import (
	"fmt"
	"net/smtp"
	"strings"
)

type MailConfig struct {
	Host     string
	Port     int64
	Username string
	Password string
	From     string
}

type MailNotification struct {
	cfg MailConfig
}

func NewMailNotification(cfg MailConfig) *MailNotification {
	return &MailNotification{cfg: cfg}
}

// SendEmergencyEmail 向监护人邮箱发送紧急邮件
func (m *MailNotification) SendEmergencyEmail(to, subject, body string) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("mail host not configured")
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg))
}

// SendWelcomeEmail 注册欢迎邮件
func (m *MailNotification) SendWelcomeEmail(to, name string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nWelcome to SafeBuddy Guardian+. Add your guardian contacts and enable fall monitoring to stay protected.\n",
		name)
	return m.SendEmergencyEmail(to, "Welcome to SafeBuddy Guardian+", body)
}
