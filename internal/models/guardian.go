package models

import (
	"time"

	"gorm.io/gorm"
)

// GuardianContact 监护人联系人。核心流程只读，不在编排里修改。
type GuardianContact struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"userId" gorm:"index"`
	Name         string    `json:"name" gorm:"size:64"`
	Phone        string    `json:"phone" gorm:"size:20"`
	Email        string    `json:"email,omitempty" gorm:"size:128"`        // 可选
	Relationship string    `json:"relationship,omitempty" gorm:"size:32"`  // 可选
	PushToken    string    `json:"pushToken,omitempty" gorm:"size:256"`    // 装了监护端 App 才有
	IsPrimary    bool      `json:"isPrimary"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListGuardians 返回用户的监护人，主联系人排前
func ListGuardians(db *gorm.DB, userID uint) ([]GuardianContact, error) {
	var guardians []GuardianContact
	err := db.Where("user_id = ?", userID).
		Order("is_primary desc, id asc").
		Find(&guardians).Error
	return guardians, err
}

// CreateGuardian 新增监护人
func CreateGuardian(db *gorm.DB, g *GuardianContact) error {
	return db.Create(g).Error
}

// UpdateGuardian 更新监护人（带归属校验），updates 的键为列名
func UpdateGuardian(db *gorm.DB, userID, id uint, updates map[string]interface{}) error {
	tx := db.Model(&GuardianContact{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteGuardian 删除监护人（带归属校验）
func DeleteGuardian(db *gorm.DB, userID, id uint) error {
	tx := db.Where("id = ? AND user_id = ?", id, userID).Delete(&GuardianContact{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
