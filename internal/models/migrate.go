package models

import "gorm.io/gorm"

// Migrate 执行表结构迁移
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&SOSIncident{},
		&LocationSample{},
		&GuardianContact{},
	)
}
