package models

import "time"

// CacheEntry is a row of the database cache backend. A zero ExpiresAt never expires.
type CacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:191"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
