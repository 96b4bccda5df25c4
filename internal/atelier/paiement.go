package atelier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	opPaiementRecord = "atelier.paiements.record"
	opPaiementList   = "atelier.paiements.list"

	orderDateDesc = "date DESC"
)

// PaiementInput describes money received for (or refunded on) an order.
// Empty Type means solde, empty MethodePaiement means especes and a zero Date means "now".
type PaiementInput struct {
	CommandeID      string
	Montant         int64
	Type            PaiementType
	MethodePaiement PaiementMethode
	Reference       string
	Date            time.Time
}

// PaiementService keeps the append-only payment ledger.
type PaiementService struct {
	*store
	alertes  *AlerteService
	settings *SettingsService
}

// Record applies a payment to an order's balance and appends the ledger entry
// in one transaction. A refund may not exceed the amount paid so far.
func (s *PaiementService) Record(ctx context.Context, input PaiementInput) (Paiement, Commande, error) {
	if input.Type == "" {
		input.Type = PaiementSolde
	}
	if input.MethodePaiement == "" {
		input.MethodePaiement = MethodeEspeces
	}
	violations := Violations{}
	violations.required("commandeId", input.CommandeID)
	violations.positive("montant", input.Montant)
	if !input.Type.Valid() {
		violations["type"] = "unknown"
	}
	if !input.MethodePaiement.Valid() {
		violations["methodePaiement"] = "unknown"
	}
	if !violations.Empty() {
		return Paiement{}, Commande{}, s.invalid(opPaiementRecord, violations)
	}

	var (
		recorded Paiement
		commande Commande
	)
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		if err := s.take(work.tx, opPaiementRecord, strings.TrimSpace(input.CommandeID), &commande); err != nil {
			return err
		}
		if input.Type == PaiementRemboursement {
			if input.Montant > commande.Acompte {
				return s.invalid(opPaiementRecord, Violations{"montant": "exceeds_amount_paid"})
			}
			commande.Acompte -= input.Montant
		} else {
			commande.Acompte += input.Montant
		}
		commande.Reste, commande.StatutPaiement = computeBalance(commande.MontantTotal, commande.Acompte)
		commande.UpdatedAt = s.now()
		if err := work.tx.Save(&commande).Error; err != nil {
			return s.failed(opPaiementRecord, "commande_save_failed", err, zap.String("commande_id", commande.ID))
		}

		var client *Client
		var found Client
		if err := s.take(work.tx, opPaiementRecord, commande.ClientID, &found); err == nil {
			client = &found
		} else if !isNotFound(err) {
			return err
		}

		date := input.Date
		if date.IsZero() {
			date = s.now()
		}
		entry, err := s.appendEntry(work, opPaiementRecord, commande, client, Paiement{
			Montant:         input.Montant,
			Type:            input.Type,
			MethodePaiement: input.MethodePaiement,
			Reference:       strings.TrimSpace(input.Reference),
			Date:            date.UTC(),
		})
		recorded = entry
		return err
	})
	if err != nil {
		return Paiement{}, Commande{}, err
	}
	return recorded, commande, nil
}

// appendEntry writes a ledger entry for an order whose balance the caller has
// already updated, and raises the payment alert when the client still exists.
func (s *PaiementService) appendEntry(work *unitOfWork, operation string, commande Commande, client *Client, entry Paiement) (Paiement, error) {
	id, err := s.newID(operation)
	if err != nil {
		return Paiement{}, err
	}
	entry.ID = id
	entry.CommandeID = commande.ID
	entry.CreatedAt = s.now()
	if err := work.tx.Create(&entry).Error; err != nil {
		return Paiement{}, s.failed(operation, "paiement_insert_failed", err, zap.String("commande_id", commande.ID))
	}
	if client == nil {
		return entry, nil
	}

	montant := FormatMontant(entry.Montant, s.settings.devise(work.tx))
	message := fmt.Sprintf("Paiement de %s reçu pour %q", montant, commande.Modele)
	if entry.Type == PaiementRemboursement {
		message = fmt.Sprintf("Remboursement de %s effectué pour %q", montant, commande.Modele)
	}
	_, err = s.alertes.raise(work, AlerteInput{
		Type:       AlertePaiement,
		Titre:      "Nouveau paiement",
		Message:    message,
		CommandeID: stringPointer(commande.ID),
		ClientID:   stringPointer(client.ID),
		Priorite:   PrioriteNormale,
	})
	if err != nil {
		return Paiement{}, err
	}
	return entry, nil
}

// ListByCommande returns an order's ledger, most recent payment first.
func (s *PaiementService) ListByCommande(ctx context.Context, commandeID string) ([]Paiement, error) {
	var paiements []Paiement
	err := s.db.WithContext(ctx).
		Where("commande_id = ?", commandeID).
		Order(orderDateDesc).
		Order(orderCreatedAtDesc).
		Find(&paiements).Error
	if err != nil {
		return nil, s.failed(opPaiementList, "query_failed", err, zap.String("commande_id", commandeID))
	}
	return paiements, nil
}

// List returns the whole ledger, most recent payment first.
func (s *PaiementService) List(ctx context.Context) ([]Paiement, error) {
	var paiements []Paiement
	if err := s.db.WithContext(ctx).Order(orderDateDesc).Order(orderCreatedAtDesc).Find(&paiements).Error; err != nil {
		return nil, s.failed(opPaiementList, "query_failed", err)
	}
	return paiements, nil
}
