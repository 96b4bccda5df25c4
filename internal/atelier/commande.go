package atelier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCommandeCreate = "atelier.commandes.create"
	opCommandeGet    = "atelier.commandes.get"
	opCommandeList   = "atelier.commandes.list"
	opCommandeUpdate = "atelier.commandes.update"
	opCommandeDelete = "atelier.commandes.delete"
	opCommandeSearch = "atelier.commandes.search"

	orderDateCommandeDesc = "date_commande DESC"
)

// CommandeInput describes a new order. A zero DateCommande means "now", an
// empty Statut means en_attente and an empty MethodePaiement means especes.
type CommandeInput struct {
	ClientID            string
	MesuresID           string
	ModeleID            *string
	Modele              string
	Photo               string
	DateCommande        time.Time
	DateLivraisonPrevue time.Time
	Statut              CommandeStatut
	MontantTotal        int64
	Acompte             int64
	MethodePaiement     PaiementMethode
	Notes               string
}

// CommandePatch lists the order fields to change; nil fields are left untouched.
// The amount paid only moves through the payment ledger.
type CommandePatch struct {
	ModeleID            *string
	ClearModeleID       bool
	Modele              *string
	Photo               *string
	DateCommande        *time.Time
	DateLivraisonPrevue *time.Time
	DateLivraisonReelle *time.Time
	Statut              *CommandeStatut
	MontantTotal        *int64
	Notes               *string
}

// CommandeService manages orders and keeps their balance consistent.
type CommandeService struct {
	*store
	alertes   *AlerteService
	paiements *PaiementService
}

// Create stores an order for an existing client and measurement set. A
// non-zero down payment is recorded in the payment ledger in the same transaction.
func (s *CommandeService) Create(ctx context.Context, input CommandeInput) (Commande, error) {
	if input.Statut == "" {
		input.Statut = CommandeEnAttente
	}
	if input.MethodePaiement == "" {
		input.MethodePaiement = MethodeEspeces
	}
	violations := Violations{}
	violations.required("clientId", input.ClientID)
	violations.required("mesuresId", input.MesuresID)
	if input.ModeleID == nil {
		violations.required("modele", input.Modele)
	}
	if input.DateLivraisonPrevue.IsZero() {
		violations["dateLivraisonPrevue"] = "required"
	}
	if !input.Statut.Valid() {
		violations["statut"] = "unknown"
	}
	if !input.MethodePaiement.Valid() {
		violations["methodePaiement"] = "unknown"
	}
	violations.nonNegative("montantTotal", input.MontantTotal)
	violations.nonNegative("acompte", input.Acompte)
	if !violations.Empty() {
		return Commande{}, s.invalid(opCommandeCreate, violations)
	}

	id, err := s.newID(opCommandeCreate)
	if err != nil {
		return Commande{}, err
	}
	now := s.now()
	dateCommande := input.DateCommande
	if dateCommande.IsZero() {
		dateCommande = now
	}
	reste, statutPaiement := computeBalance(input.MontantTotal, input.Acompte)
	commande := Commande{
		ID:                  id,
		ClientID:            strings.TrimSpace(input.ClientID),
		MesuresID:           strings.TrimSpace(input.MesuresID),
		Modele:              strings.TrimSpace(input.Modele),
		Photo:               strings.TrimSpace(input.Photo),
		DateCommande:        dateCommande.UTC(),
		DateLivraisonPrevue: input.DateLivraisonPrevue.UTC(),
		Statut:              input.Statut,
		MontantTotal:        input.MontantTotal,
		Acompte:             input.Acompte,
		Reste:               reste,
		StatutPaiement:      statutPaiement,
		Notes:               strings.TrimSpace(input.Notes),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if input.Statut == CommandeLivree {
		commande.DateLivraisonReelle = timePointer(now)
	}

	err = s.inTransaction(ctx, func(work *unitOfWork) error {
		var client Client
		if err := s.take(work.tx, opCommandeCreate, commande.ClientID, &client); err != nil {
			return err
		}
		var mesures Mesures
		if err := s.take(work.tx, opCommandeCreate, commande.MesuresID, &mesures); err != nil {
			return err
		}
		if mesures.ClientID != client.ID {
			return s.invalid(opCommandeCreate, Violations{"mesuresId": "belongs_to_another_client"})
		}
		if input.ModeleID != nil {
			modele, err := s.resolveModele(work.tx, opCommandeCreate, *input.ModeleID)
			if err != nil {
				return err
			}
			commande.ModeleID = stringPointer(modele.ID)
			if commande.Modele == "" {
				commande.Modele = modele.Nom
			}
		}

		if err := work.tx.Create(&commande).Error; err != nil {
			return s.failed(opCommandeCreate, "insert_failed", err, zap.String("client_id", client.ID))
		}
		if _, err := s.alertes.raise(work, AlerteInput{
			Type:       AlerteGeneral,
			Titre:      "Nouvelle commande",
			Message:    fmt.Sprintf("Commande %q créée pour %s", commande.Modele, client.FullName()),
			CommandeID: stringPointer(commande.ID),
			ClientID:   stringPointer(client.ID),
			Priorite:   PrioriteNormale,
		}); err != nil {
			return err
		}
		if commande.Acompte > 0 {
			_, err := s.paiements.appendEntry(work, opCommandeCreate, commande, &client, Paiement{
				Montant:         commande.Acompte,
				Type:            PaiementAcompte,
				MethodePaiement: input.MethodePaiement,
				Date:            commande.DateCommande,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Commande{}, err
	}
	return commande, nil
}

func (s *CommandeService) resolveModele(tx *gorm.DB, operation, modeleID string) (Modele, error) {
	var modele Modele
	if err := s.take(tx, operation, strings.TrimSpace(modeleID), &modele); err != nil {
		return Modele{}, err
	}
	return modele, nil
}

// Get returns one order.
func (s *CommandeService) Get(ctx context.Context, id string) (Commande, error) {
	var commande Commande
	if err := s.take(s.db.WithContext(ctx), opCommandeGet, id, &commande); err != nil {
		return Commande{}, err
	}
	return commande, nil
}

// List returns every order, most recent order date first.
func (s *CommandeService) List(ctx context.Context) ([]Commande, error) {
	return s.find(ctx, "", nil)
}

// ListByClient returns a client's orders, most recent order date first.
func (s *CommandeService) ListByClient(ctx context.Context, clientID string) ([]Commande, error) {
	return s.find(ctx, "client_id = ?", clientID)
}

// ListByStatut returns the orders in one workflow state.
func (s *CommandeService) ListByStatut(ctx context.Context, statut CommandeStatut) ([]Commande, error) {
	if !statut.Valid() {
		return nil, s.invalid(opCommandeList, Violations{"statut": "unknown"})
	}
	return s.find(ctx, "statut = ?", statut)
}

func (s *CommandeService) find(ctx context.Context, condition string, arg interface{}) ([]Commande, error) {
	query := s.db.WithContext(ctx).Order(orderDateCommandeDesc).Order(orderCreatedAtDesc)
	if condition != "" {
		query = query.Where(condition, arg)
	}
	var commandes []Commande
	if err := query.Find(&commandes).Error; err != nil {
		return nil, s.failed(opCommandeList, "query_failed", err)
	}
	return commandes, nil
}

// Search filters orders on the garment description, the client's name and the status.
func (s *CommandeService) Search(ctx context.Context, query string) ([]Commande, error) {
	commandes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var clients []Client
	if err := s.db.WithContext(ctx).Find(&clients).Error; err != nil {
		return nil, s.failed(opCommandeSearch, "query_failed", err)
	}
	names := make(map[string]string, len(clients))
	for _, client := range clients {
		names[client.ID] = client.FullName()
	}

	matches := make([]Commande, 0, len(commandes))
	for _, commande := range commandes {
		statut := string(commande.Statut)
		if matchesQuery(query, commande.Modele, names[commande.ClientID], statut, strings.ReplaceAll(statut, "_", " ")) {
			matches = append(matches, commande)
		}
	}
	return matches, nil
}

// Update applies a patch to an order, re-derives its balance and raises the
// status alert when the workflow state changes.
func (s *CommandeService) Update(ctx context.Context, id string, patch CommandePatch) (Commande, error) {
	violations := Violations{}
	if patch.Modele != nil {
		violations.required("modele", *patch.Modele)
	}
	if patch.Statut != nil && !patch.Statut.Valid() {
		violations["statut"] = "unknown"
	}
	if patch.MontantTotal != nil {
		violations.nonNegative("montantTotal", *patch.MontantTotal)
	}
	if patch.DateCommande != nil && patch.DateCommande.IsZero() {
		violations["dateCommande"] = "required"
	}
	if patch.DateLivraisonPrevue != nil && patch.DateLivraisonPrevue.IsZero() {
		violations["dateLivraisonPrevue"] = "required"
	}
	if !violations.Empty() {
		return Commande{}, s.invalid(opCommandeUpdate, violations)
	}

	var updated Commande
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		var commande Commande
		if err := s.take(work.tx, opCommandeUpdate, id, &commande); err != nil {
			return err
		}
		previous := commande.Statut
		now := s.now()

		if patch.ModeleID != nil {
			modele, err := s.resolveModele(work.tx, opCommandeUpdate, *patch.ModeleID)
			if err != nil {
				return err
			}
			commande.ModeleID = stringPointer(modele.ID)
		} else if patch.ClearModeleID {
			commande.ModeleID = nil
		}
		if patch.Modele != nil {
			commande.Modele = strings.TrimSpace(*patch.Modele)
		}
		if patch.Photo != nil {
			commande.Photo = strings.TrimSpace(*patch.Photo)
		}
		if patch.DateCommande != nil {
			commande.DateCommande = patch.DateCommande.UTC()
		}
		if patch.DateLivraisonPrevue != nil {
			commande.DateLivraisonPrevue = patch.DateLivraisonPrevue.UTC()
		}
		if patch.DateLivraisonReelle != nil {
			commande.DateLivraisonReelle = timePointer(patch.DateLivraisonReelle.UTC())
		}
		if patch.Statut != nil {
			commande.Statut = *patch.Statut
		}
		if commande.Statut == CommandeLivree && commande.DateLivraisonReelle == nil {
			commande.DateLivraisonReelle = timePointer(now)
		}
		if patch.MontantTotal != nil {
			commande.MontantTotal = *patch.MontantTotal
		}
		if patch.Notes != nil {
			commande.Notes = strings.TrimSpace(*patch.Notes)
		}
		commande.Reste, commande.StatutPaiement = computeBalance(commande.MontantTotal, commande.Acompte)
		commande.UpdatedAt = now

		if err := work.tx.Save(&commande).Error; err != nil {
			return s.failed(opCommandeUpdate, "save_failed", err, zap.String("id", id))
		}
		if commande.Statut != previous {
			if err := s.raiseStatutChange(work, commande); err != nil {
				return err
			}
		}
		updated = commande
		return nil
	})
	if err != nil {
		return Commande{}, err
	}
	return updated, nil
}

// raiseStatutChange emits the alert tied to entering a workflow state. States
// without an alert, and orders whose client no longer exists, raise nothing.
func (s *CommandeService) raiseStatutChange(work *unitOfWork, commande Commande) error {
	var client Client
	if err := s.take(work.tx, opCommandeUpdate, commande.ClientID, &client); err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	var (
		message  string
		priorite AlertePriorite
	)
	switch commande.Statut {
	case CommandeEnCours:
		message = fmt.Sprintf("Commande %q en cours de réalisation", commande.Modele)
		priorite = PrioriteNormale
	case CommandeRetouche:
		message = fmt.Sprintf("Commande %q nécessite des retouches", commande.Modele)
		priorite = PrioriteHaute
	case CommandeLivree:
		message = fmt.Sprintf("Commande %q livrée à %s", commande.Modele, client.FullName())
		priorite = PrioriteBasse
	default:
		return nil
	}
	_, err := s.alertes.raise(work, AlerteInput{
		Type:       AlerteGeneral,
		Titre:      "Statut commande",
		Message:    message,
		CommandeID: stringPointer(commande.ID),
		ClientID:   stringPointer(client.ID),
		Priorite:   priorite,
	})
	return err
}

// Delete removes an order together with its payments, alterations and alerts.
func (s *CommandeService) Delete(ctx context.Context, id string) error {
	return s.inTransaction(ctx, func(work *unitOfWork) error {
		var commande Commande
		if err := s.take(work.tx, opCommandeDelete, id, &commande); err != nil {
			return err
		}
		if err := work.tx.Where("commande_id = ?", id).Delete(&Paiement{}).Error; err != nil {
			return s.failed(opCommandeDelete, "paiements_delete_failed", err, zap.String("id", id))
		}
		if err := work.tx.Where("commande_id = ?", id).Delete(&Retouche{}).Error; err != nil {
			return s.failed(opCommandeDelete, "retouches_delete_failed", err, zap.String("id", id))
		}
		if err := work.tx.Where("commande_id = ?", id).Delete(&Alerte{}).Error; err != nil {
			return s.failed(opCommandeDelete, "alertes_delete_failed", err, zap.String("id", id))
		}
		if err := work.tx.Where("id = ?", id).Delete(&Commande{}).Error; err != nil {
			return s.failed(opCommandeDelete, "commande_delete_failed", err, zap.String("id", id))
		}
		return nil
	})
}
