package atelier

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const (
	opModeleCreate = "atelier.modeles.create"
	opModeleGet    = "atelier.modeles.get"
	opModeleList   = "atelier.modeles.list"
	opModeleUpdate = "atelier.modeles.update"
	opModeleDelete = "atelier.modeles.delete"
)

// ModeleInput describes a new catalog entry.
type ModeleInput struct {
	Nom         string
	Description string
	Image       string
	Prix        *int64
	Categorie   string
}

// ModelePatch lists the catalog fields to change; nil fields are left untouched.
type ModelePatch struct {
	Nom         *string
	Description *string
	Image       *string
	Prix        *int64
	ClearPrix   bool
	Categorie   *string
}

// ModeleService manages the garment catalog.
type ModeleService struct {
	*store
}

// Create stores a catalog entry.
func (s *ModeleService) Create(ctx context.Context, input ModeleInput) (Modele, error) {
	violations := Violations{}
	violations.required("nom", input.Nom)
	violations.required("categorie", input.Categorie)
	if input.Prix != nil {
		violations.nonNegative("prix", *input.Prix)
	}
	if !violations.Empty() {
		return Modele{}, s.invalid(opModeleCreate, violations)
	}

	id, err := s.newID(opModeleCreate)
	if err != nil {
		return Modele{}, err
	}
	now := s.now()
	modele := Modele{
		ID:          id,
		Nom:         strings.TrimSpace(input.Nom),
		Description: strings.TrimSpace(input.Description),
		Image:       input.Image,
		Prix:        input.Prix,
		Categorie:   strings.TrimSpace(input.Categorie),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&modele).Error; err != nil {
		return Modele{}, s.failed(opModeleCreate, "insert_failed", err)
	}
	return modele, nil
}

// Get returns one catalog entry.
func (s *ModeleService) Get(ctx context.Context, id string) (Modele, error) {
	var modele Modele
	if err := s.take(s.db.WithContext(ctx), opModeleGet, id, &modele); err != nil {
		return Modele{}, err
	}
	return modele, nil
}

// List returns the catalog, newest first.
func (s *ModeleService) List(ctx context.Context) ([]Modele, error) {
	var modeles []Modele
	if err := s.db.WithContext(ctx).Order(orderCreatedAtDesc).Find(&modeles).Error; err != nil {
		return nil, s.failed(opModeleList, "query_failed", err)
	}
	return modeles, nil
}

// ListByCategorie returns the catalog entries of one category, newest first.
func (s *ModeleService) ListByCategorie(ctx context.Context, categorie string) ([]Modele, error) {
	var modeles []Modele
	err := s.db.WithContext(ctx).
		Where("categorie = ?", strings.TrimSpace(categorie)).
		Order(orderCreatedAtDesc).
		Find(&modeles).Error
	if err != nil {
		return nil, s.failed(opModeleList, "query_failed", err, zap.String("categorie", categorie))
	}
	return modeles, nil
}

// Search filters the catalog on name, description and category.
func (s *ModeleService) Search(ctx context.Context, query string) ([]Modele, error) {
	modeles, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Modele, 0, len(modeles))
	for _, modele := range modeles {
		if matchesQuery(query, modele.Nom, modele.Description, modele.Categorie) {
			matches = append(matches, modele)
		}
	}
	return matches, nil
}

// Update applies a patch to a catalog entry.
func (s *ModeleService) Update(ctx context.Context, id string, patch ModelePatch) (Modele, error) {
	violations := Violations{}
	if patch.Nom != nil {
		violations.required("nom", *patch.Nom)
	}
	if patch.Categorie != nil {
		violations.required("categorie", *patch.Categorie)
	}
	if patch.Prix != nil {
		violations.nonNegative("prix", *patch.Prix)
	}
	if !violations.Empty() {
		return Modele{}, s.invalid(opModeleUpdate, violations)
	}

	var updated Modele
	err := s.inTransaction(ctx, func(work *unitOfWork) error {
		var modele Modele
		if err := s.take(work.tx, opModeleUpdate, id, &modele); err != nil {
			return err
		}
		if patch.Nom != nil {
			modele.Nom = strings.TrimSpace(*patch.Nom)
		}
		if patch.Description != nil {
			modele.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Image != nil {
			modele.Image = *patch.Image
		}
		if patch.Prix != nil {
			modele.Prix = patch.Prix
		} else if patch.ClearPrix {
			modele.Prix = nil
		}
		if patch.Categorie != nil {
			modele.Categorie = strings.TrimSpace(*patch.Categorie)
		}
		modele.UpdatedAt = s.now()
		if err := work.tx.Save(&modele).Error; err != nil {
			return s.failed(opModeleUpdate, "save_failed", err, zap.String("id", id))
		}
		updated = modele
		return nil
	})
	if err != nil {
		return Modele{}, err
	}
	return updated, nil
}

// Delete removes a catalog entry. Orders keep their free-text description and
// drop the reference.
func (s *ModeleService) Delete(ctx context.Context, id string) error {
	return s.inTransaction(ctx, func(work *unitOfWork) error {
		var modele Modele
		if err := s.take(work.tx, opModeleDelete, id, &modele); err != nil {
			return err
		}
		detach := map[string]interface{}{"modele_id": nil, "updated_at": s.now()}
		if err := work.tx.Model(&Commande{}).Where("modele_id = ?", id).Updates(detach).Error; err != nil {
			return s.failed(opModeleDelete, "commandes_detach_failed", err, zap.String("id", id))
		}
		if err := work.tx.Where("id = ?", id).Delete(&Modele{}).Error; err != nil {
			return s.failed(opModeleDelete, "delete_failed", err, zap.String("id", id))
		}
		return nil
	})
}
