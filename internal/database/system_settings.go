package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eternalmemory/eternal/internal/models"
)

// JWTSecretSetting stores the signing secret generated on first start.
const JWTSecretSetting = "auth.jwt_secret"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "setting_key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{Key: key, Value: value}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}
	return nil
}

// ResolveJWTSecret returns the persisted signing secret. When none is stored yet the
// candidate is saved and returned, so a generated secret stays valid across restarts.
func ResolveJWTSecret(ctx context.Context, db *gorm.DB, candidate string) (string, error) {
	candidate = strings.TrimSpace(candidate)

	current, err := GetSystemSetting(ctx, db, JWTSecretSetting)
	if err != nil {
		return "", err
	}
	if current = strings.TrimSpace(current); current != "" {
		return current, nil
	}
	if candidate == "" {
		return "", fmt.Errorf("system settings: jwt secret is empty")
	}

	if err := UpsertSystemSetting(ctx, db, JWTSecretSetting, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}
