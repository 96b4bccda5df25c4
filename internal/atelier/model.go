package atelier

import "time"

// SettingsID is the well-known identifier of the single Settings record.
const SettingsID = "current"

// Client is a workshop customer.
type Client struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Nom       string    `gorm:"column:nom;size:190;not null;index" json:"nom"`
	Prenoms   string    `gorm:"column:prenoms;size:190;not null;index" json:"prenoms"`
	Telephone string    `gorm:"column:telephone;size:64;not null;index" json:"telephone"`
	Email     string    `gorm:"column:email;size:320;index" json:"email,omitempty"`
	Adresse   string    `gorm:"column:adresse;size:512" json:"adresse"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Client) TableName() string {
	return "clients"
}

// FullName returns "Nom Prenoms" the way the workshop addresses a client.
func (c Client) FullName() string {
	return c.Nom + " " + c.Prenoms
}

// Measurements are the body measurements taken for a garment, in centimetres.
type Measurements struct {
	Dos              float64 `gorm:"column:dos" json:"dos"`
	LongueurManche   float64 `gorm:"column:longueur_manche" json:"longueurManche"`
	TourManche       float64 `gorm:"column:tour_manche" json:"tourManche"`
	LongueurRobe     float64 `gorm:"column:longueur_robe" json:"longueurRobe"`
	LongueurJupe     float64 `gorm:"column:longueur_jupe" json:"longueurJupe"`
	LongueurPantalon float64 `gorm:"column:longueur_pantalon" json:"longueurPantalon"`
	LongueurTaille   float64 `gorm:"column:longueur_taille" json:"longueurTaille"`
	HauteurPoitrine  float64 `gorm:"column:hauteur_poitrine" json:"hauteurPoitrine"`
	HauteurSousSein  float64 `gorm:"column:hauteur_sous_sein" json:"hauteurSousSein"`
	Encolure         float64 `gorm:"column:encolure" json:"encolure"`
	Carrure          float64 `gorm:"column:carrure" json:"carrure"`
	TourPoitrine     float64 `gorm:"column:tour_poitrine" json:"tourPoitrine"`
	TourSousSein     float64 `gorm:"column:tour_sous_sein" json:"tourSousSein"`
	TourTaille       float64 `gorm:"column:tour_taille" json:"tourTaille"`
	TourBassin       float64 `gorm:"column:tour_bassin" json:"tourBassin"`
	HauteurBassin    float64 `gorm:"column:hauteur_bassin" json:"hauteurBassin"`
	Ceinture         float64 `gorm:"column:ceinture" json:"ceinture"`
	BasPantalon      float64 `gorm:"column:bas_pantalon" json:"basPantalon"`
	TourGenou        float64 `gorm:"column:tour_genou" json:"tourGenou"`
}

// fields addresses each measurement by its JSON name.
func (m *Measurements) fields() map[string]*float64 {
	return map[string]*float64{
		"dos":              &m.Dos,
		"longueurManche":   &m.LongueurManche,
		"tourManche":       &m.TourManche,
		"longueurRobe":     &m.LongueurRobe,
		"longueurJupe":     &m.LongueurJupe,
		"longueurPantalon": &m.LongueurPantalon,
		"longueurTaille":   &m.LongueurTaille,
		"hauteurPoitrine":  &m.HauteurPoitrine,
		"hauteurSousSein":  &m.HauteurSousSein,
		"encolure":         &m.Encolure,
		"carrure":          &m.Carrure,
		"tourPoitrine":     &m.TourPoitrine,
		"tourSousSein":     &m.TourSousSein,
		"tourTaille":       &m.TourTaille,
		"tourBassin":       &m.TourBassin,
		"hauteurBassin":    &m.HauteurBassin,
		"ceinture":         &m.Ceinture,
		"basPantalon":      &m.BasPantalon,
		"tourGenou":        &m.TourGenou,
	}
}

// IsMeasurementField reports whether name is the JSON name of a measurement.
func IsMeasurementField(name string) bool {
	_, ok := (&Measurements{}).fields()[name]
	return ok
}

// Mesures is a dated snapshot of body measurements for one client.
type Mesures struct {
	ID       string `gorm:"column:id;primaryKey;size:64" json:"id"`
	ClientID string `gorm:"column:client_id;size:64;not null;index:idx_mesures_client_date,priority:1" json:"clientId"`
	Measurements
	Commentaire string    `gorm:"column:commentaire;type:text" json:"commentaire,omitempty"`
	Date        time.Time `gorm:"column:date;not null;index:idx_mesures_client_date,priority:2" json:"date"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Mesures) TableName() string {
	return "mesures"
}

// Modele is a garment template from the workshop catalog.
type Modele struct {
	ID          string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Nom         string    `gorm:"column:nom;size:190;not null;index" json:"nom"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	Image       string    `gorm:"column:image;type:text" json:"image,omitempty"`
	Prix        *int64    `gorm:"column:prix" json:"prix,omitempty"`
	Categorie   string    `gorm:"column:categorie;size:190;not null;index" json:"categorie"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Modele) TableName() string {
	return "modeles"
}

// Commande is an order placed by a client against one measurement set.
type Commande struct {
	ID                  string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	ClientID            string         `gorm:"column:client_id;size:64;not null;index" json:"clientId"`
	MesuresID           string         `gorm:"column:mesures_id;size:64;not null;index" json:"mesuresId"`
	ModeleID            *string        `gorm:"column:modele_id;size:64;index" json:"modeleId,omitempty"`
	Modele              string         `gorm:"column:modele;size:512;not null" json:"modele"`
	Photo               string         `gorm:"column:photo;type:text" json:"photo,omitempty"`
	DateCommande        time.Time      `gorm:"column:date_commande;not null;index" json:"dateCommande"`
	DateLivraisonPrevue time.Time      `gorm:"column:date_livraison_prevue;not null;index" json:"dateLivraisonPrevue"`
	DateLivraisonReelle *time.Time     `gorm:"column:date_livraison_reelle" json:"dateLivraisonReelle,omitempty"`
	Statut              CommandeStatut `gorm:"column:statut;size:32;not null;index" json:"statut"`
	MontantTotal        int64          `gorm:"column:montant_total;not null" json:"montantTotal"`
	Acompte             int64          `gorm:"column:acompte;not null" json:"acompte"`
	Reste               int64          `gorm:"column:reste;not null;index" json:"reste"`
	StatutPaiement      PaiementStatut `gorm:"column:statut_paiement;size:32;not null;index" json:"statutPaiement"`
	Notes               string         `gorm:"column:notes;type:text" json:"notes,omitempty"`
	CreatedAt           time.Time      `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Commande) TableName() string {
	return "commandes"
}

// Paiement is an append-only ledger entry against an order.
type Paiement struct {
	ID              string          `gorm:"column:id;primaryKey;size:64" json:"id"`
	CommandeID      string          `gorm:"column:commande_id;size:64;not null;index:idx_paiements_commande_date,priority:1" json:"commandeId"`
	Montant         int64           `gorm:"column:montant;not null" json:"montant"`
	Type            PaiementType    `gorm:"column:type;size:32;not null" json:"type"`
	MethodePaiement PaiementMethode `gorm:"column:methode_paiement;size:32;not null" json:"methodePaiement"`
	Reference       string          `gorm:"column:reference;size:190" json:"reference,omitempty"`
	Date            time.Time       `gorm:"column:date;not null;index:idx_paiements_commande_date,priority:2" json:"date"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (Paiement) TableName() string {
	return "paiements"
}

// Retouche is an alteration scheduled on an order.
type Retouche struct {
	ID           string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	CommandeID   string         `gorm:"column:commande_id;size:64;not null;index" json:"commandeId"`
	Description  string         `gorm:"column:description;type:text;not null" json:"description"`
	DatePrevue   time.Time      `gorm:"column:date_prevue;not null;index" json:"datePrevue"`
	DateRealisee *time.Time     `gorm:"column:date_realisee" json:"dateRealisee,omitempty"`
	Statut       RetoucheStatut `gorm:"column:statut;size:32;not null;index" json:"statut"`
	Cout         *int64         `gorm:"column:cout" json:"cout,omitempty"`
	Notes        string         `gorm:"column:notes;type:text" json:"notes,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Retouche) TableName() string {
	return "retouches"
}

// Alerte is a notification shown to the workshop.
type Alerte struct {
	ID         string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	Type       AlerteType     `gorm:"column:type;size:32;not null;index:idx_alertes_commande_type,priority:2" json:"type"`
	Titre      string         `gorm:"column:titre;size:190;not null" json:"titre"`
	Message    string         `gorm:"column:message;type:text;not null" json:"message"`
	CommandeID *string        `gorm:"column:commande_id;size:64;index:idx_alertes_commande_type,priority:1" json:"commandeId,omitempty"`
	ClientID   *string        `gorm:"column:client_id;size:64;index" json:"clientId,omitempty"`
	Priorite   AlertePriorite `gorm:"column:priorite;size:32;not null;index" json:"priorite"`
	IsRead     bool           `gorm:"column:is_read;not null;default:false;index" json:"isRead"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	ExpiresAt  *time.Time     `gorm:"column:expires_at;index" json:"expiresAt,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Alerte) TableName() string {
	return "alertes"
}

// NotificationSettings toggles the alert families the workshop wants.
type NotificationSettings struct {
	Email            bool `gorm:"column:email;not null" json:"email"`
	Push             bool `gorm:"column:push;not null" json:"push"`
	AlertesLivraison bool `gorm:"column:alertes_livraison;not null" json:"alertesLivraison"`
	AlertesPaiement  bool `gorm:"column:alertes_paiement;not null" json:"alertesPaiement"`
	AlertesRetouche  bool `gorm:"column:alertes_retouche;not null" json:"alertesRetouche"`
}

// Settings holds the workshop profile. Exactly one record exists, under SettingsID.
type Settings struct {
	ID              string               `gorm:"column:id;primaryKey;size:64" json:"id"`
	NomAtelier      string               `gorm:"column:nom_atelier;size:190;not null" json:"nomAtelier"`
	CouleurPrimaire string               `gorm:"column:couleur_primaire;size:32;not null" json:"couleurPrimaire"`
	Logo            string               `gorm:"column:logo;type:text" json:"logo,omitempty"`
	Adresse         string               `gorm:"column:adresse;size:512" json:"adresse,omitempty"`
	Telephone       string               `gorm:"column:telephone;size:64" json:"telephone,omitempty"`
	Email           string               `gorm:"column:email;size:320" json:"email,omitempty"`
	Devise          string               `gorm:"column:devise;size:16;not null" json:"devise"`
	Fuseau          string               `gorm:"column:fuseau;size:64;not null" json:"fuseau"`
	Notifications   NotificationSettings `gorm:"embedded;embeddedPrefix:notif_" json:"notifications"`
	CreatedAt       time.Time            `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings returns the profile a fresh workshop starts with.
func DefaultSettings(now time.Time) Settings {
	return Settings{
		ID:              SettingsID,
		NomAtelier:      "Mon Atelier de Couture",
		CouleurPrimaire: "#0A3764",
		Devise:          "FCFA",
		Fuseau:          "Africa/Porto-Novo",
		Notifications: NotificationSettings{
			Email:            false,
			Push:             true,
			AlertesLivraison: true,
			AlertesPaiement:  true,
			AlertesRetouche:  true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Models lists every workshop collection in dependency order, parents first.
func Models() []interface{} {
	return []interface{}{
		&Client{},
		&Mesures{},
		&Modele{},
		&Commande{},
		&Paiement{},
		&Retouche{},
		&Alerte{},
		&Settings{},
	}
}
