package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type FCMConfig struct {
	ServerKey string
	Endpoint  string // 默认 https://fcm.googleapis.com/fcm/send
}

// FCMClient 便于替换/注入的推送接口（适配真实网关）
type FCMClient interface {
	Push(ctx context.Context, token, title, body string, data map[string]string) error
}

type FCM struct {
	cfg FCMConfig
	cli FCMClient
}

func NewFCM(cfg FCMConfig, cli FCMClient) *FCM {
	if cli == nil && cfg.ServerKey != "" {
		cli = &httpFCMClient{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
	}
	return &FCM{cfg: cfg, cli: cli}
}

// PushToToken 向单个设备令牌推送紧急通知
func (f *FCM) PushToToken(ctx context.Context, token, title, body string, data map[string]string) error {
	if f.cli == nil {
		return fmt.Errorf("FCMClient not configured")
	}
	return f.cli.Push(ctx, token, title, body, data)
}

// httpFCMClient 直连 FCM legacy HTTP 接口
type httpFCMClient struct {
	cfg  FCMConfig
	http *http.Client
}

func (c *httpFCMClient) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	payload := map[string]interface{}{
		"to": token,
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
		"data":     data,
		"priority": "high",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.cfg.ServerKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fcm push failed: %s", resp.Status)
	}
	return nil
}
