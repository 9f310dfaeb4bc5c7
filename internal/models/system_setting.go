package models

import "time"

// SystemSetting stores instance-wide values that must survive restarts.
type SystemSetting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;size:191"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
