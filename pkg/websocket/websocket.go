package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 入站消息类型（设备 -> 服务端）
const (
	TypeMotion   = "motion"   // 运动传感器采样
	TypeConfirm  = "confirm"  // 跌倒确认（"我没事"）
	TypePosition = "position" // 位置上报（与 REST 上报等价的通道）
)

// 出站命令类型（服务端 -> 设备）
const (
	CmdSirenOn      = "siren_on"
	CmdSirenOff     = "siren_off"
	CmdFlashOn      = "flashlight_on"
	CmdFlashOff     = "flashlight_off"
	CmdDial         = "dial"
	CmdVoicePrompt  = "voice_prompt"
	CmdOpenDeepLink = "open_deeplink"
)

// InboundMessage 设备上行消息
type InboundMessage struct {
	Type      string  `json:"type"`
	Magnitude float64 `json:"magnitude,omitempty"` // 加速度模长 (m/s²)
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Battery   *int    `json:"battery,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // 毫秒
}

// Command 服务端下行命令
type Command struct {
	Type    string            `json:"type"`
	Payload map[string]string `json:"payload,omitempty"`
}

// InboundHandler 上行消息回调（按用户分发）
type InboundHandler func(userID string, msg InboundMessage)

// Hub 设备通道中心：每个用户一条设备连接
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection // userID -> connection
	config      *Config
	handler     InboundHandler
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		config:      config,
	}
}

// OnInbound 注册上行消息回调（必须在接入连接前调用）
func (h *Hub) OnInbound(handler InboundHandler) { h.handler = handler }

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	// 同一用户重复连接时旧连接让位
	if old, ok := h.connections[conn.UserID]; ok {
		old.closeSend()
	}
	h.connections[conn.UserID] = conn
	h.mu.Unlock()
	logrus.Infof("device channel connected: user=%s conn=%s", conn.UserID, conn.ID)
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if cur, ok := h.connections[conn.UserID]; ok && cur.ID == conn.ID {
		delete(h.connections, conn.UserID)
	}
	h.mu.Unlock()
	logrus.Infof("device channel disconnected: user=%s conn=%s", conn.UserID, conn.ID)
}

func (h *Hub) dispatch(userID string, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.Warnf("invalid device message from user %s: %v", userID, err)
		return
	}
	if h.handler != nil {
		h.handler(userID, msg)
	}
}

// SendCommand 向某用户的设备下发命令
func (h *Hub) SendCommand(userID string, cmd Command) error {
	h.mu.RLock()
	conn, ok := h.connections[userID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no device channel for user %s", userID)
	}

	raw, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if h.config.DropOnFull {
		select {
		case conn.Send <- raw:
			return nil
		default:
			return fmt.Errorf("device channel backpressure for user %s", userID)
		}
	}
	select {
	case conn.Send <- raw:
		return nil
	case <-time.After(100 * time.Millisecond):
		return fmt.Errorf("device channel send timeout for user %s", userID)
	}
}

// Connected reports whether the user has a live device channel.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[userID]
	return ok
}

// Stats 连接统计
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{"connections": len(h.connections)}
}

// Close 断开所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.connections {
		conn.closeSend()
	}
	h.connections = make(map[string]*Connection)
}
