package atelier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	opMesuresCreate = "atelier.mesures.create"
	opMesuresGet    = "atelier.mesures.get"
	opMesuresList   = "atelier.mesures.list"
	opMesuresUpdate = "atelier.mesures.update"
	opMesuresDelete = "atelier.mesures.delete"
)

// MesuresInput describes a new measurement set. A zero Date means "now".
type MesuresInput struct {
	ClientID     string
	Measurements Measurements
	Commentaire  string
	Date         time.Time
}

// MesuresPatch lists the measurement fields to change; nil fields are left untouched.
type MesuresPatch struct {
	Measurements *Measurements
	// Fields changes individual measurements, keyed by JSON name, after any
	// full replacement.
	Fields       map[string]float64
	Commentaire  *string
	Date         *time.Time
}

// MesuresService manages measurement sets.
type MesuresService struct {
	*store
	alertes *AlerteService
}

func validateMeasurements(violations Violations, measurements Measurements) {
	for field, value := range measurements.fields() {
		if *value < 0 {
			violations[field] = "must_not_be_negative"
		}
	}
}

// Create stores a measurement set for an existing client and raises the
// "new measurements" alert for that client.
func (s *MesuresService) Create(ctx context.Context, input MesuresInput) (Mesures, error) {
	violations := Violations{}
	violations.required("clientId", input.ClientID)
	validateMeasurements(violations, input.Measurements)
	if !violations.Empty() {
		return Mesures{}, s.invalid(opMesuresCreate, violations)
	}

	id, err := s.newID(opMesuresCreate)
	if err != nil {
		return Mesures{}, err
	}
	now := s.now()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	mesures := Mesures{
		ID:           id,
		ClientID:     strings.TrimSpace(input.ClientID),
		Measurements: input.Measurements,
		Commentaire:  strings.TrimSpace(input.Commentaire),
		Date:         date.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.inTransaction(ctx, func(work *unitOfWork) error {
		var client Client
		if err := s.take(work.tx, opMesuresCreate, mesures.ClientID, &client); err != nil {
			return err
		}
		if err := work.tx.Create(&mesures).Error; err != nil {
			return s.failed(opMesuresCreate, "insert_failed", err, zap.String("client_id", client.ID))
		}
		_, err := s.alertes.raise(work, AlerteInput{
			Type:     AlerteGeneral,
			Titre:    "Nouvelles mesures",
			Message:  fmt.Sprintf("Mesures prises pour %s", client.FullName()),
			ClientID: stringPointer(client.ID),
			Priorite: PrioriteNormale,
		})
		return err
	})
	if err != nil {
		return Mesures{}, err
	}
	return mesures, nil
}

// Get returns one measurement set.
func (s *MesuresService) Get(ctx context.Context, id string) (Mesures, error) {
	var mesures Mesures
	if err := s.take(s.db.WithContext(ctx), opMesuresGet, id, &mesures); err != nil {
		return Mesures{}, err
	}
	return mesures, nil
}

// ListByClient returns a client's measurement sets, most recent first.
func (s *MesuresService) ListByClient(ctx context.Context, clientID string) ([]Mesures, error) {
	var mesures []Mesures
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("date DESC").
		Order(orderCreatedAtDesc).
		Find(&mesures).Error
	if err != nil {
		return nil, s.failed(opMesuresList, "query_failed", err, zap.String("client_id", clientID))
	}
	return mesures, nil
}

// Update applies a patch to a measurement set.
func (s *MesuresService) Update(ctx context.Context, id string, patch MesuresPatch) (Mesures, error) {
	violations := Violations{}
	if patch.Measurements != nil {
		validateMeasurements(violations, *patch.Measurements)
	}
	for field, value := range patch.Fields {
		switch {
		case !IsMeasurementField(field):
			violations[field] = "unknown"
		case value < 0:
			violations[field] = "must_not_be_negative"
		}
	}
	if patch.Date != nil && patch.Date.IsZero() {
		violations["date"] = "required"
	}
	if !violations.Empty() {
		return Mesures{}, s.invalid(opMesuresUpdate, violations)
	}

	var updated Mesures
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		var mesures Mesures
		if err := s.take(work.tx, opMesuresUpdate, id, &mesures); err != nil {
			return err
		}
		if patch.Measurements != nil {
			mesures.Measurements = *patch.Measurements
		}
		targets := mesures.Measurements.fields()
		for field, value := range patch.Fields {
			*targets[field] = value
		}
		if patch.Commentaire != nil {
			mesures.Commentaire = strings.TrimSpace(*patch.Commentaire)
		}
		if patch.Date != nil {
			mesures.Date = patch.Date.UTC()
		}
		mesures.UpdatedAt = s.now()
		if err := work.tx.Save(&mesures).Error; err != nil {
			return s.failed(opMesuresUpdate, "save_failed", err, zap.String("id", id))
		}
		updated = mesures
		return nil
	})
	if err != nil {
		return Mesures{}, err
	}
	return updated, nil
}

// Delete removes a measurement set that no order references.
func (s *MesuresService) Delete(ctx context.Context, id string) error {
	return s.inTransaction(ctx, func(work *unitOfWork) error {
		var mesures Mesures
		if err := s.take(work.tx, opMesuresDelete, id, &mesures); err != nil {
			return err
		}
		var references int64
		if err := work.tx.Model(&Commande{}).Where("mesures_id = ?", id).Count(&references).Error; err != nil {
			return s.failed(opMesuresDelete, "query_failed", err, zap.String("id", id))
		}
		if references > 0 {
			return newServiceError(opMesuresDelete, "referenced_by_commande", ErrConflict)
		}
		if err := work.tx.Where("id = ?", id).Delete(&Mesures{}).Error; err != nil {
			return s.failed(opMesuresDelete, "delete_failed", err, zap.String("id", id))
		}
		return nil
	})
}
