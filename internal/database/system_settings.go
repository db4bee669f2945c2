package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/internal/models"
)

// GetSystemSetting retrieves a system setting by key. It returns an empty string and
// found=false when the key has never been written.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, bool, error) {
	if db == nil {
		return "", false, fmt.Errorf("system settings: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return "", false, nil
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).Take(&setting).Error
	if err == nil {
		return setting.Value, true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", false, nil
	}
	return "", false, fmt.Errorf("system settings: get %q: %w", key, err)
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

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where(&models.SystemSetting{Key: key}).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// SettingsKV exposes the system_settings table as a string key-value store.
type SettingsKV struct {
	db *gorm.DB
}

// NewSettingsKV constructs a SettingsKV.
func NewSettingsKV(db *gorm.DB) (*SettingsKV, error) {
	if db == nil {
		return nil, errors.New("settings kv: db is required")
	}
	return &SettingsKV{db: db}, nil
}

// Get returns the stored value for key.
func (s *SettingsKV) Get(ctx context.Context, key string) (string, bool, error) {
	return GetSystemSetting(ctx, s.db, key)
}

// Put stores value under key.
func (s *SettingsKV) Put(ctx context.Context, key, value string) error {
	return UpsertSystemSetting(ctx, s.db, key, value)
}
