package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/models"
)

// DefaultTags are created on first start so the tag cloud is never empty.
var DefaultTags = []string{"亲人", "挚友", "宠物", "英雄", "恩师"}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.OAuthState{},
		&models.Tag{},
		&models.Memorial{},
		&models.Image{},
		&models.Message{},
		&models.Candle{},
		&models.Like{},
		&models.DigitalLifeMessage{},
		&models.AuditLog{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	)
}

// SeedData populates default tags.
func SeedData(db *gorm.DB) error {
	for _, name := range DefaultTags {
		tag := models.Tag{Name: name}
		if err := db.Where(models.Tag{Name: name}).Attrs(tag).FirstOrCreate(&models.Tag{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// BootstrapAdmin promotes the account with the given email to SUPER_ADMIN. Missing
// accounts are ignored so the promotion applies once the owner registers.
func BootstrapAdmin(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, nil
	}
	if db == nil {
		return false, errors.New("nil database handle")
	}

	result := db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ? AND role <> ?", email, models.RoleSuperAdmin).
		Update("role", models.RoleSuperAdmin)
	if result.Error != nil {
		return false, fmt.Errorf("bootstrap admin: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
