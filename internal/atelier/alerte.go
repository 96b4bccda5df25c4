package atelier

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	opAlerteCreate        = "atelier.alertes.create"
	opAlerteGet           = "atelier.alertes.get"
	opAlerteList          = "atelier.alertes.list"
	opAlerteUnreadCount   = "atelier.alertes.unread_count"
	opAlerteHasUnread     = "atelier.alertes.has_unread"
	opAlerteMarkRead      = "atelier.alertes.mark_read"
	opAlerteMarkAllRead   = "atelier.alertes.mark_all_read"
	opAlerteDelete        = "atelier.alertes.delete"
	opAlerteDeleteExpired = "atelier.alertes.delete_expired"
	orderCreatedAtDesc    = "created_at DESC"
)

// AlerteInput describes a new alert.
type AlerteInput struct {
	Type       AlerteType
	Titre      string
	Message    string
	CommandeID *string
	ClientID   *string
	Priorite   AlertePriorite
	ExpiresAt  *time.Time
}

// AlerteService stores alerts and answers the queries the alert engine and UI need.
type AlerteService struct {
	*store
}

// Create stores a standalone alert.
func (s *AlerteService) Create(ctx context.Context, input AlerteInput) (Alerte, error) {
	var created Alerte
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		alerte, err := s.raise(work, input)
		created = alerte
		return err
	})
	if err != nil {
		return Alerte{}, err
	}
	return created, nil
}

// raise writes an alert inside the caller's transaction.
func (s *AlerteService) raise(work *unitOfWork, input AlerteInput) (Alerte, error) {
	violations := Violations{}
	if !input.Type.Valid() {
		violations["type"] = "unknown"
	}
	if !input.Priorite.Valid() {
		violations["priorite"] = "unknown"
	}
	violations.required("titre", input.Titre)
	violations.required("message", input.Message)
	if !violations.Empty() {
		return Alerte{}, s.invalid(opAlerteCreate, violations)
	}

	id, err := s.newID(opAlerteCreate)
	if err != nil {
		return Alerte{}, err
	}
	alerte := Alerte{
		ID:         id,
		Type:       input.Type,
		Titre:      strings.TrimSpace(input.Titre),
		Message:    strings.TrimSpace(input.Message),
		CommandeID: input.CommandeID,
		ClientID:   input.ClientID,
		Priorite:   input.Priorite,
		IsRead:     false,
		CreatedAt:  s.now(),
	}
	if input.ExpiresAt != nil {
		alerte.ExpiresAt = timePointer(input.ExpiresAt.UTC())
	}
	if err := work.tx.Create(&alerte).Error; err != nil {
		return Alerte{}, s.failed(opAlerteCreate, "insert_failed", err, zap.String("type", string(input.Type)))
	}
	work.raised = append(work.raised, alerte)
	return alerte, nil
}

// Get returns one alert.
func (s *AlerteService) Get(ctx context.Context, id string) (Alerte, error) {
	var alerte Alerte
	if err := s.take(s.db.WithContext(ctx), opAlerteGet, id, &alerte); err != nil {
		return Alerte{}, err
	}
	return alerte, nil
}

// List returns every alert, newest first.
func (s *AlerteService) List(ctx context.Context) ([]Alerte, error) {
	return s.find(ctx, "", nil)
}

// ListUnread returns unread alerts, newest first.
func (s *AlerteService) ListUnread(ctx context.Context) ([]Alerte, error) {
	return s.find(ctx, "is_read = ?", false)
}

// ListByClient returns the alerts referencing a client, newest first.
func (s *AlerteService) ListByClient(ctx context.Context, clientID string) ([]Alerte, error) {
	return s.find(ctx, "client_id = ?", clientID)
}

// ListByCommande returns the alerts referencing an order, newest first.
func (s *AlerteService) ListByCommande(ctx context.Context, commandeID string) ([]Alerte, error) {
	return s.find(ctx, "commande_id = ?", commandeID)
}

func (s *AlerteService) find(ctx context.Context, condition string, arg interface{}) ([]Alerte, error) {
	query := s.db.WithContext(ctx).Order(orderCreatedAtDesc)
	if condition != "" {
		query = query.Where(condition, arg)
	}
	var alertes []Alerte
	if err := query.Find(&alertes).Error; err != nil {
		return nil, s.failed(opAlerteList, "query_failed", err)
	}
	return alertes, nil
}

// UnreadCount counts alerts not yet read.
func (s *AlerteService) UnreadCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Alerte{}).Where("is_read = ?", false).Count(&count).Error; err != nil {
		return 0, s.failed(opAlerteUnreadCount, "query_failed", err)
	}
	return count, nil
}

// HasUnread reports whether an unread alert of the given type already references the order.
func (s *AlerteService) HasUnread(ctx context.Context, commandeID string, alerteType AlerteType) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Alerte{}).
		Where("commande_id = ? AND type = ? AND is_read = ?", commandeID, alerteType, false).
		Count(&count).Error
	if err != nil {
		return false, s.failed(opAlerteHasUnread, "query_failed", err, zap.String("commande_id", commandeID))
	}
	return count > 0, nil
}

// MarkRead flags one alert as read.
func (s *AlerteService) MarkRead(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&Alerte{}).Where("id = ?", id).Update("is_read", true)
	if result.Error != nil {
		return s.failed(opAlerteMarkRead, "update_failed", result.Error, zap.String("id", id))
	}
	if result.RowsAffected == 0 {
		return newServiceError(opAlerteMarkRead, "not_found", ErrNotFound)
	}
	return nil
}

// MarkAllRead flags every unread alert as read and returns how many changed.
func (s *AlerteService) MarkAllRead(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Alerte{}).Where("is_read = ?", false).Update("is_read", true)
	if result.Error != nil {
		return 0, s.failed(opAlerteMarkAllRead, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes one alert.
func (s *AlerteService) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Alerte{})
	if result.Error != nil {
		return s.failed(opAlerteDelete, "delete_failed", result.Error, zap.String("id", id))
	}
	if result.RowsAffected == 0 {
		return newServiceError(opAlerteDelete, "not_found", ErrNotFound)
	}
	return nil
}

// DeleteExpired removes every alert whose expiry is before now.
func (s *AlerteService) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Delete(&Alerte{})
	if result.Error != nil {
		return 0, s.failed(opAlerteDeleteExpired, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}
