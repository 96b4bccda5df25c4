package atelier

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var montantPrinter = message.NewPrinter(language.French)

// FormatMontant renders an amount with French digit grouping followed by the currency, e.g. "10 000 FCFA".
func FormatMontant(montant int64, devise string) string {
	if devise == "" {
		devise = defaultDevise
	}
	return montantPrinter.Sprintf("%d %s", montant, devise)
}

// computeBalance derives the remaining balance and payment status of an order.
func computeBalance(montantTotal, acompte int64) (int64, PaiementStatut) {
	reste := montantTotal - acompte
	if reste < 0 {
		reste = 0
	}
	switch {
	case reste <= 0:
		return reste, PaiementComplet
	case acompte > 0 && acompte < montantTotal:
		return reste, PaiementPartiel
	default:
		return reste, PaiementEnAttente
	}
}
