package notification

import (
	"fmt"
	"strings"
	"time"
)

// MessageTexts 紧急消息文案（经 i18n 本地化后传入）
type MessageTexts struct {
	Banner        string // 固定警报横幅
	NeedsHelp     string // "<name> needs immediate help!" 模板，含 {{name}}
	TimeLabel     string
	LocationLabel string
	CoordsLabel   string
	BatteryLabel  string
}

// DefaultTexts 英文默认文案
func DefaultTexts() MessageTexts {
	return MessageTexts{
		Banner:        "🚨 EMERGENCY ALERT 🚨",
		NeedsHelp:     "{{name}} needs immediate help!",
		TimeLabel:     "Time",
		LocationLabel: "Live location",
		CoordsLabel:   "Coordinates",
		BatteryLabel:  "Battery",
	}
}

// MapsLink 由经纬度构造地图深链
func MapsLink(lat, lon float64) string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", lat, lon)
}

// FormatEmergencyMessage 构造发给监护人的紧急消息。
// 格式是确定性的：横幅、姓名、时间、地图链接、6 位小数坐标、电量（如已知）。
func FormatEmergencyMessage(texts MessageTexts, name string, at time.Time, lat, lon float64, battery *int) string {
	var b strings.Builder
	b.WriteString(texts.Banner)
	b.WriteString("\n")
	b.WriteString(strings.ReplaceAll(texts.NeedsHelp, "{{name}}", name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s: %s\n", texts.TimeLabel, at.Format("Mon, 02 Jan 2006 15:04:05 MST"))
	fmt.Fprintf(&b, "%s: %s\n", texts.LocationLabel, MapsLink(lat, lon))
	fmt.Fprintf(&b, "%s: %.6f, %.6f", texts.CoordsLabel, lat, lon)
	if battery != nil {
		fmt.Fprintf(&b, "\n%s: %d%%", texts.BatteryLabel, *battery)
	}
	return b.String()
}
