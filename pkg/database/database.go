package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/caihaoran-00/xiaojilu/internal/model"
	"github.com/caihaoran-00/xiaojilu/pkg/config"
)

// Initialize opens the sqlite database file, runs migrations and the legacy
// single-family bootstrap. The returned handle is owned by the caller and
// must be closed at shutdown.
func Initialize(cfg *config.Config) (*gorm.DB, error) {
	if dir := filepath.Dir(cfg.DB.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DB.Path), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.DB.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := BootstrapLegacyFamily(db, cfg.Auth.LegacyPassword, cfg.Auth.BabyName); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the table structure for all models.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Family{},
		&model.InstantRecord{},
		&model.DurationRecord{},
		&model.RecordImage{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

// BootstrapLegacyFamily upgrades a database created by the single-family
// version of the service. If no family owns the historical password yet, one
// is created and every record still carrying the family_id = 0 sentinel is
// reassigned to it. Subsequent startups find the family and do nothing.
func BootstrapLegacyFamily(db *gorm.DB, password, babyName string) error {
	if password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&model.Family{}).Where("password = ?", password).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check for legacy family: %w", err)
	}
	if count > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		family := model.Family{Password: password, BabyName: babyName}
		if err := tx.Create(&family).Error; err != nil {
			return fmt.Errorf("failed to create legacy family: %w", err)
		}

		// Adopt any rows written before families existed.
		orphaned := []interface{}{
			&model.InstantRecord{},
			&model.DurationRecord{},
			&model.RecordImage{},
		}
		for _, m := range orphaned {
			if err := tx.Model(m).Where("family_id = ?", 0).Update("family_id", family.ID).Error; err != nil {
				return fmt.Errorf("failed to reassign legacy records: %w", err)
			}
		}
		return nil
	})
}
