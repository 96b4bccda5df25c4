package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"github.com/MarcoPoloResearchLab/coutupro/internal/backup"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	maxImportBytes    = 64 << 20
)

func (h *httpHandler) registerAlerteRoutes(group *gin.RouterGroup) {
	group.GET("/alertes", h.handleListAlertes)
	group.POST("/alertes", h.handleCreateAlerte)
	group.GET("/alertes/count", h.handleUnreadCount)
	group.GET("/alertes/stream", h.handleAlerteStream)
	group.POST("/alertes/read", h.handleMarkAllRead)
	group.POST("/alertes/check", h.handleRunAlerts)
	group.POST("/alertes/:id/read", h.handleMarkRead)
	group.DELETE("/alertes/:id", h.handleDeleteAlerte)
	group.GET("/clients/:id/alertes", h.handleListClientAlertes)
	group.GET("/commandes/:id/alertes", h.handleListCommandeAlertes)

	group.GET("/settings", h.handleGetSettings)
	group.PATCH("/settings", h.handleUpdateSettings)
}

func (h *httpHandler) handleListAlertes(c *gin.Context) {
	if c.Query("unread") == "true" {
		alertes, err := h.services.Alertes.ListUnread(c.Request.Context())
		respond(h, c, http.StatusOK, alertes, err)
		return
	}
	alertes, err := h.services.Alertes.List(c.Request.Context())
	respond(h, c, http.StatusOK, alertes, err)
}

func (h *httpHandler) handleCreateAlerte(c *gin.Context) {
	var input atelier.AlerteInput
	if !h.bind(c, &input) {
		return
	}
	alerte, err := h.services.Alertes.Create(c.Request.Context(), input)
	respond(h, c, http.StatusCreated, alerte, err)
}

func (h *httpHandler) handleUnreadCount(c *gin.Context) {
	count, err := h.services.Alertes.UnreadCount(c.Request.Context())
	respond(h, c, http.StatusOK, gin.H{"unread": count}, err)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	updated, err := h.services.Alertes.MarkAllRead(c.Request.Context())
	respond(h, c, http.StatusOK, gin.H{"updated": updated}, err)
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	if err := h.services.Alertes.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteAlerte(c *gin.Context) {
	h.respondDeleted(c, h.services.Alertes.Delete(c.Request.Context(), c.Param("id")))
}

func (h *httpHandler) handleListClientAlertes(c *gin.Context) {
	alertes, err := h.services.Alertes.ListByClient(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, alertes, err)
}

func (h *httpHandler) handleListCommandeAlertes(c *gin.Context) {
	alertes, err := h.services.Alertes.ListByCommande(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, alertes, err)
}

func (h *httpHandler) handleRunAlerts(c *gin.Context) {
	report, err := h.alerts.RunOnce(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanned":   report.Tick.Scanned,
		"livraison": report.Tick.Livraison,
		"paiement":  report.Tick.Paiement,
		"expired":   report.Expired,
	})
}

type streamEventPayload struct {
	Source    string          `json:"source"`
	Alerte    *atelier.Alerte `json:"alerte,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// handleAlerteStream pushes every committed alert as a server-sent event until
// the client disconnects.
func (h *httpHandler) handleAlerteStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			return h.writeEvent(c, message.EventType, streamEventPayload{
				Source:    realtimeSourceBackend,
				Alerte:    message.Alerte,
				Timestamp: message.Timestamp,
			})
		case tick := <-heartbeat.C:
			return h.writeEvent(c, realtimeEventHeartbeat, streamEventPayload{
				Source:    realtimeSourceBackend,
				Timestamp: tick.UTC(),
			})
		}
	})
}

func (h *httpHandler) writeEvent(c *gin.Context, eventType string, payload streamEventPayload) bool {
	c.SSEvent(eventType, payload)
	if c.IsAborted() {
		h.logger.Warn("alert stream write failed", zap.String("event", eventType))
		return false
	}
	return true
}

// Settings

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	settings, err := h.services.Settings.Get(c.Request.Context())
	respond(h, c, http.StatusOK, settings, err)
}

func (h *httpHandler) handleUpdateSettings(c *gin.Context) {
	var patch atelier.SettingsPatch
	if !h.bind(c, &patch) {
		return
	}
	settings, err := h.services.Settings.Update(c.Request.Context(), patch)
	respond(h, c, http.StatusOK, settings, err)
}

// Dashboard and backup

func (h *httpHandler) handleDashboard(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleExport(c *gin.Context) {
	document, err := h.backup.Export(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	filename := fmt.Sprintf("coutupro-%s.json", document.ExportDate.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	if err := backup.WriteJSON(c.Writer, document); err != nil {
		h.logger.Error("failed to write export", zap.Error(err))
	}
}

func (h *httpHandler) handleImport(c *gin.Context) {
	document, err := backup.ReadJSON(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		h.respondError(c, err)
		return
	}
	report, err := h.backup.Import(c.Request.Context(), document)
	respond(h, c, http.StatusOK, report, err)
}

func (h *httpHandler) handleClear(c *gin.Context) {
	if err := h.backup.ClearAll(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
