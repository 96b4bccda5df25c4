package atelier

// CommandeStatut tracks the production lifecycle of an order.
type CommandeStatut string

const (
	CommandeEnAttente CommandeStatut = "en_attente"
	CommandeEnCours   CommandeStatut = "en_cours"
	CommandeRetouche  CommandeStatut = "retouche"
	CommandeLivree    CommandeStatut = "livree"
	CommandeAnnulee   CommandeStatut = "annulee"
)

// Valid reports whether the status is one of the known variants.
func (s CommandeStatut) Valid() bool {
	switch s {
	case CommandeEnAttente, CommandeEnCours, CommandeRetouche, CommandeLivree, CommandeAnnulee:
		return true
	default:
		return false
	}
}

// PaiementStatut summarises how much of an order has been paid.
type PaiementStatut string

const (
	PaiementEnAttente PaiementStatut = "en_attente"
	PaiementPartiel   PaiementStatut = "partiel"
	PaiementComplet   PaiementStatut = "complet"
)

// Valid reports whether the status is one of the known variants.
func (s PaiementStatut) Valid() bool {
	switch s {
	case PaiementEnAttente, PaiementPartiel, PaiementComplet:
		return true
	default:
		return false
	}
}

// PaiementType classifies a ledger entry.
type PaiementType string

const (
	PaiementAcompte       PaiementType = "acompte"
	PaiementSolde         PaiementType = "solde"
	PaiementRemboursement PaiementType = "remboursement"
)

// Valid reports whether the type is one of the known variants.
func (t PaiementType) Valid() bool {
	switch t {
	case PaiementAcompte, PaiementSolde, PaiementRemboursement:
		return true
	default:
		return false
	}
}

// PaiementMethode is the means used to settle a payment.
type PaiementMethode string

const (
	MethodeEspeces     PaiementMethode = "especes"
	MethodeVirement    PaiementMethode = "virement"
	MethodeMobileMoney PaiementMethode = "mobile_money"
	MethodeCheque      PaiementMethode = "cheque"
)

// Valid reports whether the method is one of the known variants.
func (m PaiementMethode) Valid() bool {
	switch m {
	case MethodeEspeces, MethodeVirement, MethodeMobileMoney, MethodeCheque:
		return true
	default:
		return false
	}
}

// RetoucheStatut tracks an alteration.
type RetoucheStatut string

const (
	RetoucheEnAttente RetoucheStatut = "en_attente"
	RetoucheEnCours   RetoucheStatut = "en_cours"
	RetoucheTerminee  RetoucheStatut = "terminee"
)

// Valid reports whether the status is one of the known variants.
func (s RetoucheStatut) Valid() bool {
	switch s {
	case RetoucheEnAttente, RetoucheEnCours, RetoucheTerminee:
		return true
	default:
		return false
	}
}

// AlerteType is the closed set of alert categories.
type AlerteType string

const (
	AlerteLivraison AlerteType = "livraison"
	AlertePaiement  AlerteType = "paiement"
	AlerteRetouche  AlerteType = "retouche"
	AlerteStock     AlerteType = "stock"
	AlerteGeneral   AlerteType = "general"
)

// Valid reports whether the type is one of the known variants.
func (t AlerteType) Valid() bool {
	switch t {
	case AlerteLivraison, AlertePaiement, AlerteRetouche, AlerteStock, AlerteGeneral:
		return true
	default:
		return false
	}
}

// AlertePriorite orders alerts by urgency.
type AlertePriorite string

const (
	PrioriteBasse    AlertePriorite = "basse"
	PrioriteNormale  AlertePriorite = "normale"
	PrioriteHaute    AlertePriorite = "haute"
	PrioriteCritique AlertePriorite = "critique"
)

// Valid reports whether the priority is one of the known variants.
func (p AlertePriorite) Valid() bool {
	switch p {
	case PrioriteBasse, PrioriteNormale, PrioriteHaute, PrioriteCritique:
		return true
	default:
		return false
	}
}

// Categories lists the catalog categories offered by default. Modeles may
// still carry any free-form category.
func Categories() []string {
	return []string{"Robe", "Jupe", "Pantalon", "Chemise", "Boubou", "Ensemble", "Veste", "Autre"}
}
