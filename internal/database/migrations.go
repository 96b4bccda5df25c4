package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationCollapseSettingsSingleton = "2026-10-01_collapse_settings_singleton"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{name: migrationCollapseSettingsSingleton, apply: collapseSettingsSingleton},
}

// applyMigrations runs each pending migration in its own transaction together
// with its ledger row.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// collapseSettingsSingleton keeps the most recently updated settings row under
// the well-known id and drops the others.
func collapseSettingsSingleton(db *gorm.DB) error {
	var rows []atelier.Settings
	if err := db.Order("updated_at DESC").Order("created_at DESC").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	latest := rows[0]
	if latest.ID == atelier.SettingsID && len(rows) == 1 {
		return nil
	}
	if err := db.Where("1 = 1").Delete(&atelier.Settings{}).Error; err != nil {
		return err
	}
	latest.ID = atelier.SettingsID
	return db.Create(&latest).Error
}
