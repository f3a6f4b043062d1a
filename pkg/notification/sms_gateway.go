package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type SMSConfig struct {
	APIKey   string
	SenderID string // DLT 注册的发送方 ID
	Endpoint string
}

// SMSClient 便于替换/注入的短信发送接口（适配真实网关）
type SMSClient interface {
	Send(ctx context.Context, phone, message string) error
}

// SMSGateway 后端短信中继通道
type SMSGateway struct {
	cfg SMSConfig
	cli SMSClient
}

func NewSMSGateway(cfg SMSConfig, cli SMSClient) *SMSGateway {
	if cli == nil && cfg.Endpoint != "" {
		cli = &httpSMSClient{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
	}
	return &SMSGateway{cfg: cfg, cli: cli}
}

// SendEmergency 发送紧急短信
func (g *SMSGateway) SendEmergency(ctx context.Context, phone, message string) error {
	if g.cli == nil {
		return fmt.Errorf("SMSClient not configured")
	}
	return g.cli.Send(ctx, phone, message)
}

type httpSMSClient struct {
	cfg  SMSConfig
	http *http.Client
}

func (c *httpSMSClient) Send(ctx context.Context, phone, message string) error {
	payload := map[string]string{
		"to":      phone,
		"from":    c.cfg.SenderID,
		"message": message,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms relay failed: %s", resp.Status)
	}
	return nil
}
