package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"go.uber.org/zap"
)

const (
	deliveryWindow    = 24 * time.Hour
	deliveryAlertTTL  = 24 * time.Hour
	titreLivraison    = "Livraison demain"
	titrePaiementDu   = "Paiement en retard"
	logMessageFailure = "alert engine error"
)

var errMissingServices = errors.New("atelier services are required")

// EngineConfig describes the dependencies of the rule evaluator.
type EngineConfig struct {
	Services *atelier.Services
	Clock    func() time.Time
	Logger   *zap.Logger
}

// TickReport summarises one rule evaluation.
type TickReport struct {
	Scanned        int
	Livraison      int
	Paiement       int
	SkippedOrphans int
}

// Created returns how many alerts the tick raised.
func (r TickReport) Created() int {
	return r.Livraison + r.Paiement
}

// Engine derives delivery and late-payment alerts from current orders.
type Engine struct {
	services *atelier.Services
	clock    func() time.Time
	logger   *zap.Logger
}

// NewEngine validates the configuration and constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Services == nil {
		return nil, errMissingServices
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{services: cfg.Services, clock: clock, logger: logger}, nil
}

// Tick evaluates both order rules once. An unread alert of the same type for
// the same order suppresses a new one, so consecutive ticks never duplicate.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	report := TickReport{}
	now := e.clock().UTC()

	settings, err := e.services.Settings.Get(ctx)
	if err != nil {
		return report, fmt.Errorf("load settings: %w", err)
	}
	commandes, err := e.services.Commandes.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list commandes: %w", err)
	}
	clients, err := e.services.Clients.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list clients: %w", err)
	}
	byID := make(map[string]atelier.Client, len(clients))
	for _, client := range clients {
		byID[client.ID] = client
	}

	for _, commande := range commandes {
		report.Scanned++
		client, ok := byID[commande.ClientID]
		if !ok {
			report.SkippedOrphans++
			continue
		}
		livraison := commande.DateLivraisonPrevue.UTC()

		if settings.Notifications.AlertesLivraison && deliveryDue(commande, livraison, now) {
			raised, err := e.raiseOnce(ctx, commande, atelier.AlerteInput{
				Type:       atelier.AlerteLivraison,
				Titre:      titreLivraison,
				Message:    fmt.Sprintf("Livraison prévue demain pour %q - %s", commande.Modele, client.FullName()),
				CommandeID: &commande.ID,
				ClientID:   &client.ID,
				Priorite:   atelier.PrioriteHaute,
				ExpiresAt:  timePointer(livraison.Add(deliveryAlertTTL)),
			})
			if err != nil {
				return report, err
			}
			if raised {
				report.Livraison++
			}
		}

		if settings.Notifications.AlertesPaiement && commande.Reste > 0 && livraison.Before(now) {
			raised, err := e.raiseOnce(ctx, commande, atelier.AlerteInput{
				Type:       atelier.AlertePaiement,
				Titre:      titrePaiementDu,
				Message:    fmt.Sprintf("Reste %s à payer pour %q", atelier.FormatMontant(commande.Reste, settings.Devise), commande.Modele),
				CommandeID: &commande.ID,
				ClientID:   &client.ID,
				Priorite:   atelier.PrioriteCritique,
			})
			if err != nil {
				return report, err
			}
			if raised {
				report.Paiement++
			}
		}
	}
	return report, nil
}

func deliveryDue(commande atelier.Commande, livraison, now time.Time) bool {
	if commande.Statut == atelier.CommandeLivree {
		return false
	}
	return !livraison.Before(now) && !livraison.After(now.Add(deliveryWindow))
}

func (e *Engine) raiseOnce(ctx context.Context, commande atelier.Commande, input atelier.AlerteInput) (bool, error) {
	exists, err := e.services.Alertes.HasUnread(ctx, commande.ID, input.Type)
	if err != nil {
		return false, fmt.Errorf("check unread %s alert for %s: %w", input.Type, commande.ID, err)
	}
	if exists {
		return false, nil
	}
	if _, err := e.services.Alertes.Create(ctx, input); err != nil {
		return false, fmt.Errorf("create %s alert for %s: %w", input.Type, commande.ID, err)
	}
	return true, nil
}

// Cleanup deletes every alert whose expiry has passed.
func (e *Engine) Cleanup(ctx context.Context) (int64, error) {
	removed, err := e.services.Alertes.DeleteExpired(ctx, e.clock())
	if err != nil {
		return 0, fmt.Errorf("delete expired alertes: %w", err)
	}
	return removed, nil
}

func timePointer(value time.Time) *time.Time {
	return &value
}
