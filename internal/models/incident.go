package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 事件状态
const (
	IncidentActive   = "active"
	IncidentResolved = "resolved"
)

// 触发方式
const (
	TriggerManual        = "manual"
	TriggerFallDetection = "fall_detection"
	TriggerAutomaticSOS  = "automatic_sos"
	TriggerBuddyChat     = "mybuddy_emergency"
)

// ErrActiveIncidentExists 同一用户同时只允许一个 active 事件
var ErrActiveIncidentExists = errors.New("an active incident already exists for this user")

// SOSIncident 一次紧急事件
type SOSIncident struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	Reference      string  `json:"reference" gorm:"size:64;uniqueIndex"` // 对外的 UUID 句柄
	UserID         uint    `json:"userId" gorm:"index"`
	Status         string  `json:"status" gorm:"size:16;index"`
	TriggerMethod  string  `json:"triggerMethod" gorm:"size:32"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Accuracy       float64 `json:"accuracy"`
	Address        string  `json:"address,omitempty" gorm:"size:255"`
	BatteryLevel   *int    `json:"batteryLevel,omitempty"`           // 激活时电量，不可读时为空
	DevicePlatform string  `json:"devicePlatform,omitempty" gorm:"size:128"` // 激活来源设备（User-Agent 摘要）

	NotificationsSent       bool `json:"notificationsSent"`
	EmergencyServicesCalled bool `json:"emergencyServicesCalled"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// LocationSample 事件的一条位置采样。只追加，按 ID 升序即采样顺序。
type LocationSample struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	IncidentID   uint      `json:"incidentId" gorm:"index"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Accuracy     float64   `json:"accuracy"`
	BatteryLevel *int      `json:"batteryLevel,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateIncident 创建事件。事务内先查 active，保证单用户单 active 不变式
// 在存储层同样成立（编排器内存检查之外的第二道防线）。
func CreateIncident(db *gorm.DB, incident *SOSIncident) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SOSIncident{}).
			Where("user_id = ? AND status = ?", incident.UserID, IncidentActive).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrActiveIncidentExists
		}
		incident.Status = IncidentActive
		if incident.Reference == "" {
			incident.Reference = uuid.NewString()
		}
		return tx.Create(incident).Error
	})
}

// GetActiveIncident 取用户当前 active 事件，没有返回 (nil, nil)
func GetActiveIncident(db *gorm.DB, userID uint) (*SOSIncident, error) {
	var incident SOSIncident
	err := db.Where("user_id = ? AND status = ?", userID, IncidentActive).First(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// GetIncident 按 ID 取事件（带归属校验）
func GetIncident(db *gorm.DB, userID, id uint) (*SOSIncident, error) {
	var incident SOSIncident
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&incident).Error; err != nil {
		return nil, err
	}
	return &incident, nil
}

// ResolveIncident 把事件置为 resolved。幂等：已 resolved 时返回 false。
func ResolveIncident(db *gorm.DB, id uint) (bool, error) {
	now := time.Now()
	res := db.Model(&SOSIncident{}).
		Where("id = ? AND status = ?", id, IncidentActive).
		Updates(map[string]interface{}{
			"status":      IncidentResolved,
			"resolved_at": &now,
		})
	return res.RowsAffected > 0, res.Error
}

// UpdateIncidentPosition 更新事件的最近位置快照
func UpdateIncidentPosition(db *gorm.DB, id uint, lat, lon, accuracy float64, battery *int) error {
	updates := map[string]interface{}{
		"latitude":  lat,
		"longitude": lon,
		"accuracy":  accuracy,
	}
	if battery != nil {
		updates["battery_level"] = battery
	}
	return db.Model(&SOSIncident{}).Where("id = ?", id).Updates(updates).Error
}

// MarkNotificationsSent 置位通知已发标记
func MarkNotificationsSent(db *gorm.DB, id uint) error {
	return db.Model(&SOSIncident{}).Where("id = ?", id).
		Update("notifications_sent", true).Error
}

// MarkEmergencyServicesCalled 置位急救呼叫标记
func MarkEmergencyServicesCalled(db *gorm.DB, id uint) error {
	return db.Model(&SOSIncident{}).Where("id = ?", id).
		Update("emergency_services_called", true).Error
}

// AppendLocation 追加一条位置采样（只追加，不改不删）
func AppendLocation(db *gorm.DB, sample *LocationSample) error {
	return db.Create(sample).Error
}

// ListLocations 按采样顺序返回事件的位置日志
func ListLocations(db *gorm.DB, incidentID uint) ([]LocationSample, error) {
	var samples []LocationSample
	err := db.Where("incident_id = ?", incidentID).Order("id asc").Find(&samples).Error
	return samples, err
}

// SweepStaleIncidents 自动 resolve 超龄 active 事件，返回处理条数。
// 位置日志保留不删。
func SweepStaleIncidents(db *gorm.DB, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	now := time.Now()
	res := db.Model(&SOSIncident{}).
		Where("status = ? AND created_at < ?", IncidentActive, cutoff).
		Updates(map[string]interface{}{
			"status":      IncidentResolved,
			"resolved_at": &now,
		})
	return res.RowsAffected, res.Error
}
