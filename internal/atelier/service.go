package atelier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opServicesNew = "atelier.services.new"

var noOpLogger = zap.NewNop()

// Notifier is told about every alert once the transaction that raised it has committed.
type Notifier interface {
	AlerteCreated(alerte Alerte)
}

// ServiceConfig describes the dependencies shared by the entity services.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Notifier   Notifier
}

// Services groups one service per workshop entity over a single store.
type Services struct {
	Clients   *ClientService
	Mesures   *MesuresService
	Modeles   *ModeleService
	Commandes *CommandeService
	Paiements *PaiementService
	Retouches *RetoucheService
	Alertes   *AlerteService
	Settings  *SettingsService
}

// NewServices validates the configuration and wires the entity services together.
func NewServices(cfg ServiceConfig) (*Services, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServicesNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServicesNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	base := &store{
		db:       cfg.Database,
		clock:    clock,
		ids:      cfg.IDProvider,
		logger:   logger,
		notifier: cfg.Notifier,
	}
	settings := &SettingsService{store: base}
	alertes := &AlerteService{store: base}
	paiements := &PaiementService{store: base, alertes: alertes, settings: settings}

	return &Services{
		Clients:   &ClientService{store: base, alertes: alertes},
		Mesures:   &MesuresService{store: base, alertes: alertes},
		Modeles:   &ModeleService{store: base},
		Commandes: &CommandeService{store: base, alertes: alertes, paiements: paiements},
		Paiements: paiements,
		Retouches: &RetoucheService{store: base, alertes: alertes},
		Alertes:   alertes,
		Settings:  settings,
	}, nil
}

type store struct {
	db       *gorm.DB
	clock    func() time.Time
	ids      IDProvider
	logger   *zap.Logger
	notifier Notifier
}

// unitOfWork is one transaction plus the alerts it raised.
type unitOfWork struct {
	tx     *gorm.DB
	raised []Alerte
}

func (s *store) now() time.Time {
	return s.clock().UTC()
}

func (s *store) newID(operation string) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return "", newServiceError(operation, "id_generation_failed", err)
	}
	return id, nil
}

// inTransaction runs fn atomically and notifies raised alerts after commit.
func (s *store) inTransaction(ctx context.Context, fn func(*unitOfWork) error) error {
	work := &unitOfWork{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		work.tx = tx
		work.raised = work.raised[:0]
		return fn(work)
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		for _, alerte := range work.raised {
			s.notifier.AlerteCreated(alerte)
		}
	}
	return nil
}

// take loads one record by id, mapping a missing row to ErrNotFound.
func (s *store) take(db *gorm.DB, operation string, id string, dest interface{}) error {
	err := db.Where("id = ?", id).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(operation, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("id", id))
		return newServiceError(operation, "query_failed", err)
	}
	return nil
}

func (s *store) failed(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

func (s *store) invalid(operation string, violations Violations) error {
	return newServiceError(operation, "invalid_input", violations.err())
}

func (s *store) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("atelier service error", attrs...)
}

func stringPointer(value string) *string {
	v := value
	return &v
}

func timePointer(value time.Time) *time.Time {
	v := value
	return &v
}
