package device

import (
	"context"
	"strconv"
	"time"

	"SafeBuddyGuardian/internal/sos"
	ws "SafeBuddyGuardian/pkg/websocket"
)

// Gateway 把设备通道封装成编排器需要的能力接口：
// 警报器/闪光灯开关、拨号、跌倒确认提示都翻译成下行命令，
// 由用户设备上的客户端实际执行。
type Gateway struct {
	hub *ws.Hub
}

func NewGateway(hub *ws.Hub) *Gateway {
	return &Gateway{hub: hub}
}

func uid(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

// commandDriver 开/关各对应一条下行命令
type commandDriver struct {
	label   string
	hub     *ws.Hub
	userID  string
	on, off ws.Command
}

func (d *commandDriver) Name() string { return d.label }

func (d *commandDriver) Start(context.Context) error {
	return d.hub.SendCommand(d.userID, d.on)
}

func (d *commandDriver) Stop(context.Context) error {
	return d.hub.SendCommand(d.userID, d.off)
}

// Actuators 构造某用户设备的警报器与闪光灯。
// 警报器首选扬声器警报音，降级走媒体通道；
// 闪光灯首选手电，降级为屏幕频闪。
func (g *Gateway) Actuators(userID uint) (*sos.Actuator, *sos.Actuator) {
	id := uid(userID)
	siren := sos.NewActuator("siren",
		&commandDriver{
			label: "alarm-tone", hub: g.hub, userID: id,
			on:  ws.Command{Type: ws.CmdSirenOn, Payload: map[string]string{"channel": "alarm"}},
			off: ws.Command{Type: ws.CmdSirenOff},
		},
		&commandDriver{
			label: "media-tone", hub: g.hub, userID: id,
			on:  ws.Command{Type: ws.CmdSirenOn, Payload: map[string]string{"channel": "media"}},
			off: ws.Command{Type: ws.CmdSirenOff},
		})
	flashlight := sos.NewActuator("flashlight",
		&commandDriver{
			label: "torch", hub: g.hub, userID: id,
			on:  ws.Command{Type: ws.CmdFlashOn, Payload: map[string]string{"mode": "torch"}},
			off: ws.Command{Type: ws.CmdFlashOff},
		},
		&commandDriver{
			label: "screen-strobe", hub: g.hub, userID: id,
			on:  ws.Command{Type: ws.CmdFlashOn, Payload: map[string]string{"mode": "screen"}},
			off: ws.Command{Type: ws.CmdFlashOff},
		})
	return siren, flashlight
}

// Dial 下发拨号命令，设备端发起实际呼叫
func (g *Gateway) Dial(_ context.Context, userID uint, number string) error {
	return g.hub.SendCommand(uid(userID), ws.Command{
		Type:    ws.CmdDial,
		Payload: map[string]string{"number": number},
	})
}

// OpenDeepLink 让设备打开深链（WhatsApp 预填消息等）
func (g *Gateway) OpenDeepLink(userID uint, url string) error {
	return g.hub.SendCommand(uid(userID), ws.Command{
		Type:    ws.CmdOpenDeepLink,
		Payload: map[string]string{"url": url},
	})
}

// RaiseFallPrompt 跌倒确认窗口开启：设备播放语音询问并弹出倒计时
func (g *Gateway) RaiseFallPrompt(_ context.Context, userID uint, deadline time.Time) {
	_ = g.hub.SendCommand(uid(userID), ws.Command{
		Type: ws.CmdVoicePrompt,
		Payload: map[string]string{
			"action":   "fall_prompt",
			"deadline": deadline.Format(time.RFC3339),
		},
	})
}

// ClearFallPrompt 确认或超时后撤掉提示
func (g *Gateway) ClearFallPrompt(_ context.Context, userID uint) {
	_ = g.hub.SendCommand(uid(userID), ws.Command{
		Type:    ws.CmdVoicePrompt,
		Payload: map[string]string{"action": "clear"},
	})
}
