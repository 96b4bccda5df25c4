package atelier

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opSettingsGet    = "atelier.settings.get"
	opSettingsUpdate = "atelier.settings.update"
	defaultDevise    = "FCFA"
)

// SettingsPatch lists the profile fields to change; nil fields are left untouched.
type SettingsPatch struct {
	NomAtelier      *string
	CouleurPrimaire *string
	Logo            *string
	Adresse         *string
	Telephone       *string
	Email           *string
	Devise          *string
	Fuseau          *string
	Notifications   *NotificationSettings
}

// SettingsService owns the single workshop profile.
type SettingsService struct {
	*store
}

// Get returns the workshop profile, creating it with defaults on first access.
func (s *SettingsService) Get(ctx context.Context) (Settings, error) {
	var settings Settings
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		loaded, err := s.ensure(work.tx)
		settings = loaded
		return err
	})
	if err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Update applies a patch to the workshop profile.
func (s *SettingsService) Update(ctx context.Context, patch SettingsPatch) (Settings, error) {
	violations := Violations{}
	if patch.NomAtelier != nil {
		violations.required("nomAtelier", *patch.NomAtelier)
	}
	if patch.CouleurPrimaire != nil {
		violations.required("couleurPrimaire", *patch.CouleurPrimaire)
	}
	if patch.Devise != nil {
		violations.required("devise", *patch.Devise)
	}
	if patch.Fuseau != nil {
		if _, err := time.LoadLocation(strings.TrimSpace(*patch.Fuseau)); err != nil || strings.TrimSpace(*patch.Fuseau) == "" {
			violations["fuseau"] = "unknown_timezone"
		}
	}
	if !violations.Empty() {
		return Settings{}, s.invalid(opSettingsUpdate, violations)
	}

	var updated Settings
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		settings, err := s.ensure(work.tx)
		if err != nil {
			return err
		}
		applySettingsPatch(&settings, patch)
		settings.UpdatedAt = s.now()
		if err := work.tx.Save(&settings).Error; err != nil {
			return s.failed(opSettingsUpdate, "save_failed", err)
		}
		updated = settings
		return nil
	})
	if err != nil {
		return Settings{}, err
	}
	return updated, nil
}

func (s *SettingsService) ensure(tx *gorm.DB) (Settings, error) {
	settings, found, err := s.lookup(tx)
	if err != nil || found {
		return settings, err
	}
	defaults := DefaultSettings(s.now())
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error; err != nil {
		return Settings{}, s.failed(opSettingsGet, "insert_failed", err)
	}
	settings, _, err = s.lookup(tx)
	return settings, err
}

// lookup reads the profile without creating it.
func (s *SettingsService) lookup(tx *gorm.DB) (Settings, bool, error) {
	var settings Settings
	err := tx.Where("id = ?", SettingsID).Take(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, s.failed(opSettingsGet, "query_failed", err)
	}
	return settings, true, nil
}

// devise returns the configured currency, or the default when no profile exists yet.
func (s *SettingsService) devise(tx *gorm.DB) string {
	settings, found, err := s.lookup(tx)
	if err != nil || !found || strings.TrimSpace(settings.Devise) == "" {
		return defaultDevise
	}
	return settings.Devise
}

func applySettingsPatch(settings *Settings, patch SettingsPatch) {
	if patch.NomAtelier != nil {
		settings.NomAtelier = strings.TrimSpace(*patch.NomAtelier)
	}
	if patch.CouleurPrimaire != nil {
		settings.CouleurPrimaire = strings.TrimSpace(*patch.CouleurPrimaire)
	}
	if patch.Logo != nil {
		settings.Logo = *patch.Logo
	}
	if patch.Adresse != nil {
		settings.Adresse = strings.TrimSpace(*patch.Adresse)
	}
	if patch.Telephone != nil {
		settings.Telephone = strings.TrimSpace(*patch.Telephone)
	}
	if patch.Email != nil {
		settings.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Devise != nil {
		settings.Devise = strings.TrimSpace(*patch.Devise)
	}
	if patch.Fuseau != nil {
		settings.Fuseau = strings.TrimSpace(*patch.Fuseau)
	}
	if patch.Notifications != nil {
		settings.Notifications = *patch.Notifications
	}
}
