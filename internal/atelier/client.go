package atelier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	opClientCreate = "atelier.clients.create"
	opClientGet    = "atelier.clients.get"
	opClientList   = "atelier.clients.list"
	opClientUpdate = "atelier.clients.update"
	opClientDelete = "atelier.clients.delete"
)

// ClientInput describes a new client.
type ClientInput struct {
	Nom       string
	Prenoms   string
	Telephone string
	Email     string
	Adresse   string
}

// ClientPatch lists the client fields to change; nil fields are left untouched.
type ClientPatch struct {
	Nom       *string
	Prenoms   *string
	Telephone *string
	Email     *string
	Adresse   *string
}

// ClientService manages clients and owns the client deletion cascade.
type ClientService struct {
	*store
	alertes *AlerteService
}

// Create stores a client and raises the "new client" alert.
func (s *ClientService) Create(ctx context.Context, input ClientInput) (Client, error) {
	violations := Violations{}
	violations.required("nom", input.Nom)
	violations.required("prenoms", input.Prenoms)
	violations.required("telephone", input.Telephone)
	if !violations.Empty() {
		return Client{}, s.invalid(opClientCreate, violations)
	}

	id, err := s.newID(opClientCreate)
	if err != nil {
		return Client{}, err
	}
	now := s.now()
	client := Client{
		ID:        id,
		Nom:       strings.TrimSpace(input.Nom),
		Prenoms:   strings.TrimSpace(input.Prenoms),
		Telephone: strings.TrimSpace(input.Telephone),
		Email:     strings.TrimSpace(input.Email),
		Adresse:   strings.TrimSpace(input.Adresse),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.inTransaction(ctx, func(work *unitOfWork) error {
		if err := work.tx.Create(&client).Error; err != nil {
			return s.failed(opClientCreate, "insert_failed", err)
		}
		_, err := s.alertes.raise(work, AlerteInput{
			Type:     AlerteGeneral,
			Titre:    "Nouveau client",
			Message:  fmt.Sprintf("%s a été ajouté", client.FullName()),
			ClientID: stringPointer(client.ID),
			Priorite: PrioriteNormale,
		})
		return err
	})
	if err != nil {
		return Client{}, err
	}
	return client, nil
}

// Get returns one client.
func (s *ClientService) Get(ctx context.Context, id string) (Client, error) {
	var client Client
	if err := s.take(s.db.WithContext(ctx), opClientGet, id, &client); err != nil {
		return Client{}, err
	}
	return client, nil
}

// List returns every client, newest first.
func (s *ClientService) List(ctx context.Context) ([]Client, error) {
	var clients []Client
	if err := s.db.WithContext(ctx).Order(orderCreatedAtDesc).Find(&clients).Error; err != nil {
		return nil, s.failed(opClientList, "query_failed", err)
	}
	return clients, nil
}

// Search filters clients on name, first names, phone and email.
func (s *ClientService) Search(ctx context.Context, query string) ([]Client, error) {
	clients, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Client, 0, len(clients))
	for _, client := range clients {
		if matchesQuery(query, client.Nom, client.Prenoms, client.Telephone, client.Email) {
			matches = append(matches, client)
		}
	}
	return matches, nil
}

// Update applies a patch to a client.
func (s *ClientService) Update(ctx context.Context, id string, patch ClientPatch) (Client, error) {
	violations := Violations{}
	if patch.Nom != nil {
		violations.required("nom", *patch.Nom)
	}
	if patch.Prenoms != nil {
		violations.required("prenoms", *patch.Prenoms)
	}
	if patch.Telephone != nil {
		violations.required("telephone", *patch.Telephone)
	}
	if !violations.Empty() {
		return Client{}, s.invalid(opClientUpdate, violations)
	}

	var updated Client
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		var client Client
		if err := s.take(work.tx, opClientUpdate, id, &client); err != nil {
			return err
		}
		if patch.Nom != nil {
			client.Nom = strings.TrimSpace(*patch.Nom)
		}
		if patch.Prenoms != nil {
			client.Prenoms = strings.TrimSpace(*patch.Prenoms)
		}
		if patch.Telephone != nil {
			client.Telephone = strings.TrimSpace(*patch.Telephone)
		}
		if patch.Email != nil {
			client.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.Adresse != nil {
			client.Adresse = strings.TrimSpace(*patch.Adresse)
		}
		client.UpdatedAt = s.now()
		if err := work.tx.Save(&client).Error; err != nil {
			return s.failed(opClientUpdate, "save_failed", err, zap.String("id", id))
		}
		updated = client
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return updated, nil
}

// Delete removes a client together with its measurements, orders, their payments
// and alterations, and every alert referencing the client or its orders. All
// deletions share one transaction, leaves first.
func (s *ClientService) Delete(ctx context.Context, id string) error {
	return s.inTransaction(ctx, func(work *unitOfWork) error {
		var client Client
		if err := s.take(work.tx, opClientDelete, id, &client); err != nil {
			return err
		}

		var commandeIDs []string
		if err := work.tx.Model(&Commande{}).Where("client_id = ?", id).Pluck("id", &commandeIDs).Error; err != nil {
			return s.failed(opClientDelete, "query_failed", err, zap.String("id", id))
		}

		if len(commandeIDs) > 0 {
			if err := work.tx.Where("commande_id IN ?", commandeIDs).Delete(&Paiement{}).Error; err != nil {
				return s.failed(opClientDelete, "paiements_delete_failed", err, zap.String("id", id))
			}
			if err := work.tx.Where("commande_id IN ?", commandeIDs).Delete(&Retouche{}).Error; err != nil {
				return s.failed(opClientDelete, "retouches_delete_failed", err, zap.String("id", id))
			}
			if err := work.tx.Where("commande_id IN ?", commandeIDs).Delete(&Alerte{}).Error; err != nil {
				return s.failed(opClientDelete, "alertes_delete_failed", err, zap.String("id", id))
			}
		}
		if err := work.tx.Where("client_id = ?", id).Delete(&Alerte{}).Error; err != nil {
			return s.failed(opClientDelete, "alertes_delete_failed", err, zap.String("id", id))
		}
		if err := work.tx.Where("client_id = ?", id).Delete(&Commande{}).Error; err != nil {
			return s.failed(opClientDelete, "commandes_delete_failed", err, zap.String("id", id))
		}
		if err := work.tx.Where("client_id = ?", id).Delete(&Mesures{}).Error; err != nil {
			return s.failed(opClientDelete, "mesures_delete_failed", err, zap.String("id", id))
		}
		if err := work.tx.Where("id = ?", id).Delete(&Client{}).Error; err != nil {
			return s.failed(opClientDelete, "client_delete_failed", err, zap.String("id", id))
		}
		return nil
	})
}
