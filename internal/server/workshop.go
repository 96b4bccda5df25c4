package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) registerWorkshopRoutes(group *gin.RouterGroup) {
	group.GET("/clients", h.handleListClients)
	group.POST("/clients", h.handleCreateClient)
	group.GET("/clients/:id", h.handleGetClient)
	group.PATCH("/clients/:id", h.handleUpdateClient)
	group.DELETE("/clients/:id", h.handleDeleteClient)
	group.GET("/clients/:id/mesures", h.handleListClientMesures)
	group.GET("/clients/:id/commandes", h.handleListClientCommandes)

	group.POST("/mesures", h.handleCreateMesures)
	group.GET("/mesures/:id", h.handleGetMesures)
	group.PATCH("/mesures/:id", h.handleUpdateMesures)
	group.DELETE("/mesures/:id", h.handleDeleteMesures)

	group.GET("/modeles", h.handleListModeles)
	group.POST("/modeles", h.handleCreateModele)
	group.GET("/modeles/categories", h.handleListCategories)
	group.GET("/modeles/:id", h.handleGetModele)
	group.PATCH("/modeles/:id", h.handleUpdateModele)
	group.DELETE("/modeles/:id", h.handleDeleteModele)

	group.GET("/commandes", h.handleListCommandes)
	group.POST("/commandes", h.handleCreateCommande)
	group.GET("/commandes/:id", h.handleGetCommande)
	group.PATCH("/commandes/:id", h.handleUpdateCommande)
	group.DELETE("/commandes/:id", h.handleDeleteCommande)
	group.GET("/commandes/:id/paiements", h.handleListCommandePaiements)
	group.POST("/commandes/:id/paiements", h.handleRecordPaiement)
	group.GET("/commandes/:id/retouches", h.handleListCommandeRetouches)

	group.GET("/paiements", h.handleListPaiements)

	group.GET("/retouches", h.handleListRetouches)
	group.POST("/retouches", h.handleCreateRetouche)
	group.GET("/retouches/:id", h.handleGetRetouche)
	group.PATCH("/retouches/:id", h.handleUpdateRetouche)
	group.DELETE("/retouches/:id", h.handleDeleteRetouche)
}

// bind decodes the request body. Request bodies use the same camelCase field
// names as the stored records.
func (h *httpHandler) bind(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		h.badRequest(c, "invalid_json")
		return false
	}
	return true
}

func respond[T any](h *httpHandler, c *gin.Context, status int, value T, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, value)
}

func (h *httpHandler) respondDeleted(c *gin.Context, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Clients

func (h *httpHandler) handleListClients(c *gin.Context) {
	if query := strings.TrimSpace(c.Query("q")); query != "" {
		clients, err := h.services.Clients.Search(c.Request.Context(), query)
		respond(h, c, http.StatusOK, clients, err)
		return
	}
	clients, err := h.services.Clients.List(c.Request.Context())
	respond(h, c, http.StatusOK, clients, err)
}

func (h *httpHandler) handleCreateClient(c *gin.Context) {
	var input atelier.ClientInput
	if !h.bind(c, &input) {
		return
	}
	client, err := h.services.Clients.Create(c.Request.Context(), input)
	respond(h, c, http.StatusCreated, client, err)
}

func (h *httpHandler) handleGetClient(c *gin.Context) {
	client, err := h.services.Clients.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, client, err)
}

func (h *httpHandler) handleUpdateClient(c *gin.Context) {
	var patch atelier.ClientPatch
	if !h.bind(c, &patch) {
		return
	}
	client, err := h.services.Clients.Update(c.Request.Context(), c.Param("id"), patch)
	respond(h, c, http.StatusOK, client, err)
}

func (h *httpHandler) handleDeleteClient(c *gin.Context) {
	h.respondDeleted(c, h.services.Clients.Delete(c.Request.Context(), c.Param("id")))
}

func (h *httpHandler) handleListClientMesures(c *gin.Context) {
	mesures, err := h.services.Mesures.ListByClient(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, mesures, err)
}

func (h *httpHandler) handleListClientCommandes(c *gin.Context) {
	commandes, err := h.services.Commandes.ListByClient(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, commandes, err)
}

// Mesures

type mesuresPayload struct {
	ClientID string `json:"clientId"`
	atelier.Measurements
	Commentaire string    `json:"commentaire"`
	Date        time.Time `json:"date"`
}

func (h *httpHandler) handleCreateMesures(c *gin.Context) {
	var payload mesuresPayload
	if !h.bind(c, &payload) {
		return
	}
	mesures, err := h.services.Mesures.Create(c.Request.Context(), atelier.MesuresInput{
		ClientID:     payload.ClientID,
		Measurements: payload.Measurements,
		Commentaire:  payload.Commentaire,
		Date:         payload.Date,
	})
	respond(h, c, http.StatusCreated, mesures, err)
}

func (h *httpHandler) handleGetMesures(c *gin.Context) {
	mesures, err := h.services.Mesures.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, mesures, err)
}

// handleUpdateMesures takes the same flat body as creation; only the
// measurements present in the body change.
func (h *httpHandler) handleUpdateMesures(c *gin.Context) {
	var body map[string]json.RawMessage
	if !h.bind(c, &body) {
		return
	}
	patch := atelier.MesuresPatch{Fields: map[string]float64{}}
	for key, raw := range body {
		var err error
		switch {
		case key == "commentaire":
			err = json.Unmarshal(raw, &patch.Commentaire)
		case key == "date":
			err = json.Unmarshal(raw, &patch.Date)
		case atelier.IsMeasurementField(key):
			var value float64
			err = json.Unmarshal(raw, &value)
			patch.Fields[key] = value
		}
		if err != nil {
			h.badRequest(c, "invalid_json")
			return
		}
	}
	mesures, err := h.services.Mesures.Update(c.Request.Context(), c.Param("id"), patch)
	respond(h, c, http.StatusOK, mesures, err)
}

func (h *httpHandler) handleDeleteMesures(c *gin.Context) {
	h.respondDeleted(c, h.services.Mesures.Delete(c.Request.Context(), c.Param("id")))
}

// Modeles

func (h *httpHandler) handleListModeles(c *gin.Context) {
	ctx := c.Request.Context()
	if query := strings.TrimSpace(c.Query("q")); query != "" {
		modeles, err := h.services.Modeles.Search(ctx, query)
		respond(h, c, http.StatusOK, modeles, err)
		return
	}
	if categorie := strings.TrimSpace(c.Query("categorie")); categorie != "" {
		modeles, err := h.services.Modeles.ListByCategorie(ctx, categorie)
		respond(h, c, http.StatusOK, modeles, err)
		return
	}
	modeles, err := h.services.Modeles.List(ctx)
	respond(h, c, http.StatusOK, modeles, err)
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, atelier.Categories())
}

func (h *httpHandler) handleCreateModele(c *gin.Context) {
	var input atelier.ModeleInput
	if !h.bind(c, &input) {
		return
	}
	modele, err := h.services.Modeles.Create(c.Request.Context(), input)
	respond(h, c, http.StatusCreated, modele, err)
}

func (h *httpHandler) handleGetModele(c *gin.Context) {
	modele, err := h.services.Modeles.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, modele, err)
}

func (h *httpHandler) handleUpdateModele(c *gin.Context) {
	var patch atelier.ModelePatch
	if !h.bind(c, &patch) {
		return
	}
	modele, err := h.services.Modeles.Update(c.Request.Context(), c.Param("id"), patch)
	respond(h, c, http.StatusOK, modele, err)
}

func (h *httpHandler) handleDeleteModele(c *gin.Context) {
	h.respondDeleted(c, h.services.Modeles.Delete(c.Request.Context(), c.Param("id")))
}

// Commandes

type paiementRecordedPayload struct {
	Paiement atelier.Paiement `json:"paiement"`
	Commande atelier.Commande `json:"commande"`
}

func (h *httpHandler) handleListCommandes(c *gin.Context) {
	ctx := c.Request.Context()
	if query := strings.TrimSpace(c.Query("q")); query != "" {
		commandes, err := h.services.Commandes.Search(ctx, query)
		respond(h, c, http.StatusOK, commandes, err)
		return
	}
	if statut := strings.TrimSpace(c.Query("statut")); statut != "" {
		commandes, err := h.services.Commandes.ListByStatut(ctx, atelier.CommandeStatut(statut))
		respond(h, c, http.StatusOK, commandes, err)
		return
	}
	commandes, err := h.services.Commandes.List(ctx)
	respond(h, c, http.StatusOK, commandes, err)
}

func (h *httpHandler) handleCreateCommande(c *gin.Context) {
	var input atelier.CommandeInput
	if !h.bind(c, &input) {
		return
	}
	commande, err := h.services.Commandes.Create(c.Request.Context(), input)
	respond(h, c, http.StatusCreated, commande, err)
}

func (h *httpHandler) handleGetCommande(c *gin.Context) {
	commande, err := h.services.Commandes.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, commande, err)
}

func (h *httpHandler) handleUpdateCommande(c *gin.Context) {
	var patch atelier.CommandePatch
	if !h.bind(c, &patch) {
		return
	}
	commande, err := h.services.Commandes.Update(c.Request.Context(), c.Param("id"), patch)
	respond(h, c, http.StatusOK, commande, err)
}

func (h *httpHandler) handleDeleteCommande(c *gin.Context) {
	h.respondDeleted(c, h.services.Commandes.Delete(c.Request.Context(), c.Param("id")))
}

func (h *httpHandler) handleListCommandePaiements(c *gin.Context) {
	paiements, err := h.services.Paiements.ListByCommande(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, paiements, err)
}

func (h *httpHandler) handleRecordPaiement(c *gin.Context) {
	var input atelier.PaiementInput
	if !h.bind(c, &input) {
		return
	}
	input.CommandeID = c.Param("id")
	paiement, commande, err := h.services.Paiements.Record(c.Request.Context(), input)
	respond(h, c, http.StatusCreated, paiementRecordedPayload{Paiement: paiement, Commande: commande}, err)
}

func (h *httpHandler) handleListCommandeRetouches(c *gin.Context) {
	retouches, err := h.services.Retouches.ListByCommande(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, retouches, err)
}

func (h *httpHandler) handleListPaiements(c *gin.Context) {
	paiements, err := h.services.Paiements.List(c.Request.Context())
	respond(h, c, http.StatusOK, paiements, err)
}

// Retouches

func (h *httpHandler) handleListRetouches(c *gin.Context) {
	retouches, err := h.services.Retouches.List(c.Request.Context())
	respond(h, c, http.StatusOK, retouches, err)
}

func (h *httpHandler) handleCreateRetouche(c *gin.Context) {
	var input atelier.RetoucheInput
	if !h.bind(c, &input) {
		return
	}
	retouche, err := h.services.Retouches.Create(c.Request.Context(), input)
	respond(h, c, http.StatusCreated, retouche, err)
}

func (h *httpHandler) handleGetRetouche(c *gin.Context) {
	retouche, err := h.services.Retouches.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, retouche, err)
}

func (h *httpHandler) handleUpdateRetouche(c *gin.Context) {
	var patch atelier.RetouchePatch
	if !h.bind(c, &patch) {
		return
	}
	retouche, err := h.services.Retouches.Update(c.Request.Context(), c.Param("id"), patch)
	respond(h, c, http.StatusOK, retouche, err)
}

func (h *httpHandler) handleDeleteRetouche(c *gin.Context) {
	h.respondDeleted(c, h.services.Retouches.Delete(c.Request.Context(), c.Param("id")))
}
