package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const activeClientWindowMonths = 3

var errMissingDatabase = errors.New("database handle is required")

// SettingsSource supplies the workshop profile, whose timezone decides month boundaries.
type SettingsSource interface {
	Get(ctx context.Context) (atelier.Settings, error)
}

// Config describes the aggregator dependencies. Location is the fallback used
// when the workshop profile names no valid timezone.
type Config struct {
	Database *gorm.DB
	Settings SettingsSource
	Clock    func() time.Time
	Location *time.Location
	Logger   *zap.Logger
}

// Stats is the dashboard projection. Revenue counts money collected
// (montantTotal - reste), not order value.
type Stats struct {
	TotalClients       int64     `json:"totalClients"`
	CommandesEnAttente int64     `json:"commandesEnAttente"`
	CommandesEnCours   int64     `json:"commandesEnCours"`
	CommandesLivrees   int64     `json:"commandesLivrees"`
	RevenuMois         int64     `json:"revenuMois"`
	RevenuAnnee        int64     `json:"revenuAnnee"`
	AlertesNonLues     int64     `json:"alertesNonLues"`
	CommandesImpayees  int64     `json:"commandesImpayees"`
	RetouchesEnCours   int64     `json:"retouchesEnCours"`
	ClientsActifs      int64     `json:"clientsActifs"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// Aggregator recomputes Stats from the store on every call.
type Aggregator struct {
	db       *gorm.DB
	settings SettingsSource
	clock    func() time.Time
	location *time.Location
	logger   *zap.Logger
}

// NewAggregator validates the configuration.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{db: cfg.Database, settings: cfg.Settings, clock: clock, location: location, logger: logger}, nil
}

type orderRow struct {
	ClientID     string
	DateCommande time.Time
	MontantTotal int64
	Reste        int64
	Statut       atelier.CommandeStatut
}

// Stats scans the current store contents.
func (a *Aggregator) Stats(ctx context.Context) (Stats, error) {
	location := a.resolveLocation(ctx)
	now := a.clock().In(location)
	stats := Stats{GeneratedAt: now.UTC()}
	db := a.db.WithContext(ctx)

	if err := db.Model(&atelier.Client{}).Count(&stats.TotalClients).Error; err != nil {
		return Stats{}, a.failed("count_clients", err)
	}
	if err := db.Model(&atelier.Alerte{}).Where("is_read = ?", false).Count(&stats.AlertesNonLues).Error; err != nil {
		return Stats{}, a.failed("count_alertes", err)
	}
	if err := db.Model(&atelier.Retouche{}).Where("statut <> ?", atelier.RetoucheTerminee).Count(&stats.RetouchesEnCours).Error; err != nil {
		return Stats{}, a.failed("count_retouches", err)
	}

	var orders []orderRow
	if err := db.Model(&atelier.Commande{}).
		Select("client_id", "date_commande", "montant_total", "reste", "statut").
		Find(&orders).Error; err != nil {
		return Stats{}, a.failed("load_commandes", err)
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, location)
	monthEnd := monthStart.AddDate(0, 1, 0)
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, location)
	yearEnd := yearStart.AddDate(1, 0, 0)
	activeSince := now.AddDate(0, -activeClientWindowMonths, 0)
	active := make(map[string]struct{})

	for _, order := range orders {
		switch order.Statut {
		case atelier.CommandeEnAttente:
			stats.CommandesEnAttente++
		case atelier.CommandeEnCours:
			stats.CommandesEnCours++
		case atelier.CommandeLivree:
			stats.CommandesLivrees++
		}
		if order.Reste > 0 {
			stats.CommandesImpayees++
		}
		collected := order.MontantTotal - order.Reste
		if within(order.DateCommande, monthStart, monthEnd) {
			stats.RevenuMois += collected
		}
		if within(order.DateCommande, yearStart, yearEnd) {
			stats.RevenuAnnee += collected
		}
		if !order.DateCommande.Before(activeSince) {
			active[order.ClientID] = struct{}{}
		}
	}
	stats.ClientsActifs = int64(len(active))
	return stats, nil
}

func within(value, start, end time.Time) bool {
	return !value.Before(start) && value.Before(end)
}

func (a *Aggregator) resolveLocation(ctx context.Context) *time.Location {
	if a.settings == nil {
		return a.location
	}
	settings, err := a.settings.Get(ctx)
	if err != nil {
		a.logger.Warn("dashboard settings unavailable", zap.Error(err))
		return a.location
	}
	if settings.Fuseau == "" {
		return a.location
	}
	location, err := time.LoadLocation(settings.Fuseau)
	if err != nil {
		a.logger.Warn("dashboard timezone invalid", zap.String("fuseau", settings.Fuseau), zap.Error(err))
		return a.location
	}
	return location
}

func (a *Aggregator) failed(reason string, err error) error {
	a.logger.Error("dashboard aggregation error", zap.String("reason", reason), zap.Error(err))
	return fmt.Errorf("dashboard.stats.%s: %w", reason, err)
}
