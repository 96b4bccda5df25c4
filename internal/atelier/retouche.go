package atelier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	opRetoucheCreate = "atelier.retouches.create"
	opRetoucheGet    = "atelier.retouches.get"
	opRetoucheList   = "atelier.retouches.list"
	opRetoucheUpdate = "atelier.retouches.update"
	opRetoucheDelete = "atelier.retouches.delete"
)

// RetoucheInput describes a new alteration. An empty Statut means en_attente.
type RetoucheInput struct {
	CommandeID  string
	Description string
	DatePrevue  time.Time
	Statut      RetoucheStatut
	Cout        *int64
	Notes       string
}

// RetouchePatch lists the alteration fields to change; nil fields are left untouched.
type RetouchePatch struct {
	Description  *string
	DatePrevue   *time.Time
	DateRealisee *time.Time
	Statut       *RetoucheStatut
	Cout         *int64
	ClearCout    bool
	Notes        *string
}

// RetoucheService manages alterations scheduled on orders.
type RetoucheService struct {
	*store
	alertes *AlerteService
}

func validateRetouche(violations Violations, statut *RetoucheStatut, cout *int64) {
	if statut != nil && !statut.Valid() {
		violations["statut"] = "unknown"
	}
	if cout != nil {
		violations.nonNegative("cout", *cout)
	}
}

// Create schedules an alteration on an existing order and raises the
// high-priority alteration alert.
func (s *RetoucheService) Create(ctx context.Context, input RetoucheInput) (Retouche, error) {
	if input.Statut == "" {
		input.Statut = RetoucheEnAttente
	}
	violations := Violations{}
	violations.required("commandeId", input.CommandeID)
	violations.required("description", input.Description)
	if input.DatePrevue.IsZero() {
		violations["datePrevue"] = "required"
	}
	validateRetouche(violations, &input.Statut, input.Cout)
	if !violations.Empty() {
		return Retouche{}, s.invalid(opRetoucheCreate, violations)
	}

	id, err := s.newID(opRetoucheCreate)
	if err != nil {
		return Retouche{}, err
	}
	now := s.now()
	retouche := Retouche{
		ID:          id,
		CommandeID:  strings.TrimSpace(input.CommandeID),
		Description: strings.TrimSpace(input.Description),
		DatePrevue:  input.DatePrevue.UTC(),
		Statut:      input.Statut,
		Cout:        input.Cout,
		Notes:       strings.TrimSpace(input.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if retouche.Statut == RetoucheTerminee {
		retouche.DateRealisee = timePointer(now)
	}

	err = s.inTransaction(ctx, func(work *unitOfWork) error {
		var commande Commande
		if err := s.take(work.tx, opRetoucheCreate, retouche.CommandeID, &commande); err != nil {
			return err
		}
		if err := work.tx.Create(&retouche).Error; err != nil {
			return s.failed(opRetoucheCreate, "insert_failed", err, zap.String("commande_id", commande.ID))
		}
		_, err := s.alertes.raise(work, AlerteInput{
			Type:       AlerteRetouche,
			Titre:      "Nouvelle retouche",
			Message:    fmt.Sprintf("Retouche programmée pour %q - %s", commande.Modele, retouche.Description),
			CommandeID: stringPointer(commande.ID),
			ClientID:   stringPointer(commande.ClientID),
			Priorite:   PrioriteHaute,
		})
		return err
	})
	if err != nil {
		return Retouche{}, err
	}
	return retouche, nil
}

// Get returns one alteration.
func (s *RetoucheService) Get(ctx context.Context, id string) (Retouche, error) {
	var retouche Retouche
	if err := s.take(s.db.WithContext(ctx), opRetoucheGet, id, &retouche); err != nil {
		return Retouche{}, err
	}
	return retouche, nil
}

// List returns every alteration, newest first.
func (s *RetoucheService) List(ctx context.Context) ([]Retouche, error) {
	var retouches []Retouche
	if err := s.db.WithContext(ctx).Order(orderCreatedAtDesc).Find(&retouches).Error; err != nil {
		return nil, s.failed(opRetoucheList, "query_failed", err)
	}
	return retouches, nil
}

// ListByCommande returns an order's alterations, newest first.
func (s *RetoucheService) ListByCommande(ctx context.Context, commandeID string) ([]Retouche, error) {
	var retouches []Retouche
	err := s.db.WithContext(ctx).
		Where("commande_id = ?", commandeID).
		Order(orderCreatedAtDesc).
		Find(&retouches).Error
	if err != nil {
		return nil, s.failed(opRetoucheList, "query_failed", err, zap.String("commande_id", commandeID))
	}
	return retouches, nil
}

// Update applies a patch to an alteration. Completing it stamps the completion date when unset.
func (s *RetoucheService) Update(ctx context.Context, id string, patch RetouchePatch) (Retouche, error) {
	violations := Violations{}
	if patch.Description != nil {
		violations.required("description", *patch.Description)
	}
	if patch.DatePrevue != nil && patch.DatePrevue.IsZero() {
		violations["datePrevue"] = "required"
	}
	validateRetouche(violations, patch.Statut, patch.Cout)
	if !violations.Empty() {
		return Retouche{}, s.invalid(opRetoucheUpdate, violations)
	}

	var updated Retouche
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		var retouche Retouche
		if err := s.take(work.tx, opRetoucheUpdate, id, &retouche); err != nil {
			return err
		}
		now := s.now()
		if patch.Description != nil {
			retouche.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.DatePrevue != nil {
			retouche.DatePrevue = patch.DatePrevue.UTC()
		}
		if patch.DateRealisee != nil {
			retouche.DateRealisee = timePointer(patch.DateRealisee.UTC())
		}
		if patch.Statut != nil {
			retouche.Statut = *patch.Statut
		}
		if retouche.Statut == RetoucheTerminee && retouche.DateRealisee == nil {
			retouche.DateRealisee = timePointer(now)
		}
		if patch.Cout != nil {
			retouche.Cout = patch.Cout
		} else if patch.ClearCout {
			retouche.Cout = nil
		}
		if patch.Notes != nil {
			retouche.Notes = strings.TrimSpace(*patch.Notes)
		}
		retouche.UpdatedAt = now
		if err := work.tx.Save(&retouche).Error; err != nil {
			return s.failed(opRetoucheUpdate, "save_failed", err, zap.String("id", id))
		}
		updated = retouche
		return nil
	})
	if err != nil {
		return Retouche{}, err
	}
	return updated, nil
}

// Delete removes one alteration.
func (s *RetoucheService) Delete(ctx context.Context, id string) error {
	return s.inTransaction(ctx, func(work *unitOfWork) error {
		var retouche Retouche
		if err := s.take(work.tx, opRetoucheDelete, id, &retouche); err != nil {
			return err
		}
		if err := work.tx.Where("id = ?", id).Delete(&Retouche{}).Error; err != nil {
			return s.failed(opRetoucheDelete, "delete_failed", err, zap.String("id", id))
		}
		return nil
	})
}
