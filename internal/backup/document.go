package backup

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
)

// validateDocument checks identifiers and closed enumerations before any write.
func validateDocument(document Document) error {
	var problems []string
	check := func(collection string, index int, id string, enumsValid bool) {
		if strings.TrimSpace(id) == "" {
			problems = append(problems, fmt.Sprintf("%s[%d] has no id", collection, index))
		}
		if !enumsValid {
			problems = append(problems, fmt.Sprintf("%s[%d] has an unknown enumeration value", collection, index))
		}
	}
	for index, record := range document.Clients {
		check("clients", index, record.ID, true)
	}
	for index, record := range document.Mesures {
		check("mesures", index, record.ID, true)
	}
	for index, record := range document.Modeles {
		check("modeles", index, record.ID, true)
	}
	for index, record := range document.Commandes {
		check("commandes", index, record.ID, record.Statut.Valid() && record.StatutPaiement.Valid())
	}
	for index, record := range document.Paiements {
		check("paiements", index, record.ID, record.Type.Valid() && record.MethodePaiement.Valid())
	}
	for index, record := range document.Retouches {
		check("retouches", index, record.ID, record.Statut.Valid())
	}
	for index, record := range document.Alertes {
		check("alertes", index, record.ID, record.Type.Valid() && record.Priorite.Valid())
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: backup: %s", atelier.ErrValidation, strings.Join(problems, "; "))
}

// normalizeDocument stores every timestamp in UTC so range queries compare consistently.
func normalizeDocument(document *Document) {
	for index := range document.Clients {
		record := &document.Clients[index]
		record.CreatedAt, record.UpdatedAt = record.CreatedAt.UTC(), record.UpdatedAt.UTC()
	}
	for index := range document.Mesures {
		record := &document.Mesures[index]
		record.Date = record.Date.UTC()
		record.CreatedAt, record.UpdatedAt = record.CreatedAt.UTC(), record.UpdatedAt.UTC()
	}
	for index := range document.Modeles {
		record := &document.Modeles[index]
		record.CreatedAt, record.UpdatedAt = record.CreatedAt.UTC(), record.UpdatedAt.UTC()
	}
	for index := range document.Commandes {
		record := &document.Commandes[index]
		record.DateCommande = record.DateCommande.UTC()
		record.DateLivraisonPrevue = record.DateLivraisonPrevue.UTC()
		record.DateLivraisonReelle = utcPointer(record.DateLivraisonReelle)
		record.CreatedAt, record.UpdatedAt = record.CreatedAt.UTC(), record.UpdatedAt.UTC()
	}
	for index := range document.Paiements {
		record := &document.Paiements[index]
		record.Date, record.CreatedAt = record.Date.UTC(), record.CreatedAt.UTC()
	}
	for index := range document.Retouches {
		record := &document.Retouches[index]
		record.DatePrevue = record.DatePrevue.UTC()
		record.DateRealisee = utcPointer(record.DateRealisee)
		record.CreatedAt, record.UpdatedAt = record.CreatedAt.UTC(), record.UpdatedAt.UTC()
	}
	for index := range document.Alertes {
		record := &document.Alertes[index]
		record.CreatedAt = record.CreatedAt.UTC()
		record.ExpiresAt = utcPointer(record.ExpiresAt)
	}
	for index := range document.Settings {
		record := &document.Settings[index]
		record.CreatedAt, record.UpdatedAt = record.CreatedAt.UTC(), record.UpdatedAt.UTC()
	}
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func recordIDs[T any](records []T, id func(T) string) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, id(record))
	}
	return ids
}
