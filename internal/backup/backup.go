package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FormatVersion is written into every exported document.
const FormatVersion = "2.0"

const supportedMajor = "2"

var (
	// ErrUnsupportedVersion indicates a document from an incompatible format.
	ErrUnsupportedVersion = errors.New("backup: unsupported document version")

	errMissingDatabase = errors.New("backup: database connection required")
)

// Document is the whole workshop store in one transferable value.
type Document struct {
	Version    string             `json:"version"`
	ExportDate time.Time          `json:"exportDate"`
	Clients    []atelier.Client   `json:"clients"`
	Mesures    []atelier.Mesures  `json:"mesures"`
	Modeles    []atelier.Modele   `json:"modeles"`
	Commandes  []atelier.Commande `json:"commandes"`
	Paiements  []atelier.Paiement `json:"paiements"`
	Retouches  []atelier.Retouche `json:"retouches"`
	Alertes    []atelier.Alerte   `json:"alertes"`
	Settings   []atelier.Settings `json:"settings"`
}

// ImportReport counts the records written per collection.
type ImportReport struct {
	Clients   int `json:"clients"`
	Mesures   int `json:"mesures"`
	Modeles   int `json:"modeles"`
	Commandes int `json:"commandes"`
	Paiements int `json:"paiements"`
	Retouches int `json:"retouches"`
	Alertes   int `json:"alertes"`
	Settings  int `json:"settings"`
}

// Config describes the backup service dependencies.
type Config struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service exports, imports and wipes the workshop data. Session tables are never touched.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates the configuration.
func NewService(cfg Config) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Export reads every workshop collection from one consistent snapshot.
func (s *Service) Export(ctx context.Context) (Document, error) {
	document := Document{Version: FormatVersion, ExportDate: s.clock().UTC()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reads := []struct {
			name string
			dest interface{}
		}{
			{"clients", &document.Clients},
			{"mesures", &document.Mesures},
			{"modeles", &document.Modeles},
			{"commandes", &document.Commandes},
			{"paiements", &document.Paiements},
			{"retouches", &document.Retouches},
			{"alertes", &document.Alertes},
			{"settings", &document.Settings},
		}
		for _, read := range reads {
			if err := tx.Order("id").Find(read.dest).Error; err != nil {
				return fmt.Errorf("read %s: %w", read.name, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("backup export failed", zap.Error(err))
		return Document{}, fmt.Errorf("backup: export: %w", err)
	}
	return document, nil
}

// WriteJSON serialises a document.
func WriteJSON(w io.Writer, document Document) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(document); err != nil {
		return fmt.Errorf("backup: encode: %w", err)
	}
	return nil
}

// ReadJSON parses a document and rejects incompatible versions.
func ReadJSON(r io.Reader) (Document, error) {
	var document Document
	if err := json.NewDecoder(r).Decode(&document); err != nil {
		return Document{}, fmt.Errorf("%w: backup: decode: %v", atelier.ErrValidation, err)
	}
	major := strings.SplitN(strings.TrimSpace(document.Version), ".", 2)[0]
	if major != supportedMajor {
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, document.Version)
	}
	return document, nil
}

// Import inserts every present collection inside one transaction. Absent or
// empty arrays are skipped; an id that already exists aborts the whole import.
// The last settings record wins and is stored under the well-known id.
func (s *Service) Import(ctx context.Context, document Document) (ImportReport, error) {
	if err := validateDocument(document); err != nil {
		return ImportReport{}, err
	}
	normalizeDocument(&document)

	report := ImportReport{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			name    string
			model   interface{}
			records interface{}
			ids     []string
			count   *int
		}{
			{"clients", &atelier.Client{}, document.Clients, recordIDs(document.Clients, func(r atelier.Client) string { return r.ID }), &report.Clients},
			{"mesures", &atelier.Mesures{}, document.Mesures, recordIDs(document.Mesures, func(r atelier.Mesures) string { return r.ID }), &report.Mesures},
			{"modeles", &atelier.Modele{}, document.Modeles, recordIDs(document.Modeles, func(r atelier.Modele) string { return r.ID }), &report.Modeles},
			{"commandes", &atelier.Commande{}, document.Commandes, recordIDs(document.Commandes, func(r atelier.Commande) string { return r.ID }), &report.Commandes},
			{"paiements", &atelier.Paiement{}, document.Paiements, recordIDs(document.Paiements, func(r atelier.Paiement) string { return r.ID }), &report.Paiements},
			{"retouches", &atelier.Retouche{}, document.Retouches, recordIDs(document.Retouches, func(r atelier.Retouche) string { return r.ID }), &report.Retouches},
			{"alertes", &atelier.Alerte{}, document.Alertes, recordIDs(document.Alertes, func(r atelier.Alerte) string { return r.ID }), &report.Alertes},
		}
		for _, step := range steps {
			if len(step.ids) == 0 {
				continue
			}
			if err := rejectDuplicates(tx, step.name, step.model, step.ids); err != nil {
				return err
			}
			if err := tx.CreateInBatches(step.records, 200).Error; err != nil {
				return fmt.Errorf("insert %s: %w", step.name, err)
			}
			*step.count = len(step.ids)
		}
		if len(document.Settings) > 0 {
			settings := document.Settings[len(document.Settings)-1]
			settings.ID = atelier.SettingsID
			if err := tx.Save(&settings).Error; err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			report.Settings = 1
		}
		return nil
	})
	if err != nil {
		s.logger.Error("backup import failed", zap.Error(err))
		return ImportReport{}, fmt.Errorf("backup: import: %w", err)
	}
	s.logger.Info("backup imported",
		zap.Int("clients", report.Clients),
		zap.Int("commandes", report.Commandes),
		zap.Int("alertes", report.Alertes),
	)
	return report, nil
}

// ClearAll empties every workshop collection. Access codes, users and the
// device binding survive so the session stays valid after a wipe.
func (s *Service) ClearAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		models := atelier.Models()
		for index := len(models) - 1; index >= 0; index-- {
			if err := tx.Where("1 = 1").Delete(models[index]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("backup clear failed", zap.Error(err))
		return fmt.Errorf("backup: clear: %w", err)
	}
	s.logger.Info("workshop data cleared")
	return nil
}

func rejectDuplicates(tx *gorm.DB, name string, model interface{}, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s id %q repeated in document", atelier.ErrConflict, name, id)
		}
		seen[id] = struct{}{}
	}
	var existing int64
	if err := tx.Model(model).Where("id IN ?", ids).Count(&existing).Error; err != nil {
		return fmt.Errorf("check %s ids: %w", name, err)
	}
	if existing > 0 {
		return fmt.Errorf("%w: %d %s already present", atelier.ErrConflict, existing, name)
	}
	return nil
}
