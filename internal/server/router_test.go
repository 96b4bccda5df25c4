package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/access"
	"github.com/MarcoPoloResearchLab/coutupro/internal/alerts"
	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"github.com/MarcoPoloResearchLab/coutupro/internal/auth"
	"github.com/MarcoPoloResearchLab/coutupro/internal/backup"
	"github.com/MarcoPoloResearchLab/coutupro/internal/dashboard"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testAccessCode    = "ATELIER1"
	testDeviceAgent   = "Mozilla/5.0 (Linux; Android 14) Chrome/126"
	otherDeviceAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Safari/605"
	testSigningSecret = "router-test-secret"
)

type apiHarness struct {
	handler http.Handler
	gate    *access.Gate
	cookie  *http.Cookie
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(append(atelier.Models(), access.Models()...)...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	logger := zap.NewNop()
	dispatcher := NewRealtimeDispatcher()
	ids := atelier.NewUUIDProvider()
	services, err := atelier.NewServices(atelier.ServiceConfig{Database: db, IDProvider: ids, Notifier: dispatcher, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create services: %v", err)
	}
	gate, err := access.NewGate(access.GateConfig{Database: db, IDProvider: ids, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(testSigningSecret), CookieName: "coutupro_session"})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	aggregator, err := dashboard.NewAggregator(dashboard.Config{Database: db, Settings: services.Settings})
	if err != nil {
		t.Fatalf("failed to create aggregator: %v", err)
	}
	backups, err := backup.NewService(backup.Config{Database: db})
	if err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}
	engine, err := alerts.NewEngine(alerts.EngineConfig{Services: services})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	scheduler, err := alerts.NewScheduler(alerts.SchedulerConfig{Engine: engine, TickInterval: time.Hour, CleanupInterval: time.Hour})
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Services:  services,
		Gate:      gate,
		Tokens:    tokens,
		Sessions:  sessions,
		Dashboard: aggregator,
		Backup:    backups,
		Realtime:  dispatcher,
		Alerts:    scheduler,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	if _, err := gate.IssueCode(context.Background(), testAccessCode); err != nil {
		t.Fatalf("failed to issue code: %v", err)
	}
	return &apiHarness{handler: handler, gate: gate}
}

func (h *apiHarness) request(t *testing.T, method, path, userAgent string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch typed := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(typed))
	default:
		payload, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Accept-Language", "fr-BJ")
	request.Header.Set(headerDeviceScreen, "1080x2400")
	if h.cookie != nil {
		request.AddCookie(h.cookie)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h *apiHarness) login(t *testing.T) {
	t.Helper()
	recorder := h.request(t, http.MethodPost, "/auth/code", testDeviceAgent, gin.H{"code": strings.ToLower(testAccessCode)})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == "coutupro_session" {
			h.cookie = cookie
		}
	}
	if h.cookie == nil || h.cookie.Value == "" || !h.cookie.HttpOnly {
		t.Fatalf("expected an http-only session cookie, got %#v", h.cookie)
	}
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode %q: %v", recorder.Body.String(), err)
	}
	return value
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newAPIHarness(t)
	if recorder := h.request(t, http.MethodGet, "/clients", testDeviceAgent, nil); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", recorder.Code)
	}
	recorder := h.request(t, http.MethodPost, "/auth/code", testDeviceAgent, gin.H{"code": "WRONG"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown code, got %d", recorder.Code)
	}

	h.login(t)
	if recorder := h.request(t, http.MethodGet, "/auth/session", testDeviceAgent, nil); recorder.Code != http.StatusOK {
		t.Fatalf("expected session to be valid, got %d", recorder.Code)
	}

	second := h.request(t, http.MethodPost, "/auth/code", otherDeviceAgent, gin.H{"code": testAccessCode})
	if second.Code != http.StatusUnauthorized {
		t.Fatalf("expected consumed code to be rejected on another device, got %d", second.Code)
	}
}

func TestSessionFromAnotherDeviceIsTornDown(t *testing.T) {
	h := newAPIHarness(t)
	h.login(t)

	stolen := h.request(t, http.MethodGet, "/clients", otherDeviceAgent, nil)
	if stolen.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for another device, got %d", stolen.Code)
	}
	if h.gate.Authenticated() {
		t.Fatalf("expected the session to be torn down")
	}
	if recorder := h.request(t, http.MethodGet, "/clients", testDeviceAgent, nil); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected original device to need a new code, got %d", recorder.Code)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	h := newAPIHarness(t)
	h.login(t)
	if recorder := h.request(t, http.MethodPost, "/auth/logout", testDeviceAgent, nil); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if recorder := h.request(t, http.MethodGet, "/clients", testDeviceAgent, nil); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", recorder.Code)
	}
}

func TestLogoutRequiresBoundSession(t *testing.T) {
	h := newAPIHarness(t)
	h.login(t)
	ownerCookie := h.cookie

	h.cookie = nil
	if recorder := h.request(t, http.MethodPost, "/auth/logout", otherDeviceAgent, nil); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected cookieless logout to be rejected, got %d", recorder.Code)
	}
	if !h.gate.Authenticated() {
		t.Fatalf("expected the bound session to survive a cookieless logout")
	}

	h.cookie = ownerCookie
	if recorder := h.request(t, http.MethodGet, "/clients", testDeviceAgent, nil); recorder.Code != http.StatusOK {
		t.Fatalf("expected the owner to keep access, got %d", recorder.Code)
	}
}

func TestWorkshopRoutesMapServiceErrors(t *testing.T) {
	h := newAPIHarness(t)
	h.login(t)

	invalid := h.request(t, http.MethodPost, "/clients", testDeviceAgent, gin.H{"nom": "Dossou"})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", invalid.Code)
	}
	body := decode[map[string]interface{}](t, invalid)
	if body["code"] != "atelier.clients.create.invalid_input" {
		t.Fatalf("expected service error code, got %v", body["code"])
	}
	violations, _ := body["violations"].(map[string]interface{})
	if violations["prenoms"] != "required" || violations["telephone"] != "required" {
		t.Fatalf("expected field violations, got %v", body["violations"])
	}

	if recorder := h.request(t, http.MethodGet, "/clients/missing", testDeviceAgent, nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if recorder := h.request(t, http.MethodPost, "/clients", testDeviceAgent, "{broken"); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", recorder.Code)
	}

	created := h.request(t, http.MethodPost, "/clients", testDeviceAgent, gin.H{"nom": "Dossou", "prenoms": "Éléonore", "telephone": "+229 90 00 00 01"})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", created.Code, created.Body.String())
	}
	client := decode[atelier.Client](t, created)

	mesures := h.request(t, http.MethodPost, "/mesures", testDeviceAgent, gin.H{"clientId": client.ID, "tourTaille": 72, "tourPoitrine": 95})
	if mesures.Code != http.StatusCreated {
		t.Fatalf("expected 201 for mesures, got %d %s", mesures.Code, mesures.Body.String())
	}
	storedMesures := decode[atelier.Mesures](t, mesures)
	if storedMesures.TourTaille != 72 {
		t.Fatalf("expected flat measurement fields to bind, got %#v", storedMesures.Measurements)
	}

	patched := h.request(t, http.MethodPatch, "/mesures/"+storedMesures.ID, testDeviceAgent, gin.H{"tourTaille": 70, "commentaire": "après essayage"})
	if patched.Code != http.StatusOK {
		t.Fatalf("expected flat mesures patch to succeed, got %d %s", patched.Code, patched.Body.String())
	}
	if updated := decode[atelier.Mesures](t, patched); updated.TourTaille != 70 || updated.TourPoitrine != 95 || updated.Commentaire != "après essayage" {
		t.Fatalf("expected flat patch to change only tourTaille, got %#v", updated)
	}

	commande := h.request(t, http.MethodPost, "/commandes", testDeviceAgent, gin.H{
		"clientId":            client.ID,
		"mesuresId":           storedMesures.ID,
		"modele":              "Kaba",
		"dateLivraisonPrevue": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"montantTotal":        30000,
		"acompte":             10000,
	})
	if commande.Code != http.StatusCreated {
		t.Fatalf("expected 201 for commande, got %d %s", commande.Code, commande.Body.String())
	}
	order := decode[atelier.Commande](t, commande)
	if order.Reste != 20000 || order.StatutPaiement != atelier.PaiementPartiel {
		t.Fatalf("unexpected balance %#v", order)
	}

	conflict := h.request(t, http.MethodDelete, "/mesures/"+storedMesures.ID, testDeviceAgent, nil)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409 for referenced mesures, got %d", conflict.Code)
	}

	paid := h.request(t, http.MethodPost, "/commandes/"+order.ID+"/paiements", testDeviceAgent, gin.H{"montant": 20000, "methodePaiement": "mobile_money"})
	if paid.Code != http.StatusCreated {
		t.Fatalf("expected 201 for paiement, got %d %s", paid.Code, paid.Body.String())
	}
	recorded := decode[paiementRecordedPayload](t, paid)
	if recorded.Commande.Reste != 0 || recorded.Commande.StatutPaiement != atelier.PaiementComplet {
		t.Fatalf("expected order settled, got %#v", recorded.Commande)
	}

	search := h.request(t, http.MethodGet, "/clients?q=eleonore", testDeviceAgent, nil)
	if found := decode[[]atelier.Client](t, search); len(found) != 1 {
		t.Fatalf("expected accent-insensitive search hit, got %d", len(found))
	}

	stats := h.request(t, http.MethodGet, "/dashboard", testDeviceAgent, nil)
	if stats.Code != http.StatusOK {
		t.Fatalf("expected dashboard, got %d", stats.Code)
	}
	if decoded := decode[dashboard.Stats](t, stats); decoded.TotalClients != 1 || decoded.AlertesNonLues == 0 {
		t.Fatalf("unexpected stats %#v", decoded)
	}

	count := decode[map[string]int64](t, h.request(t, http.MethodGet, "/alertes/count", testDeviceAgent, nil))
	if count["unread"] == 0 {
		t.Fatalf("expected unread alerts after writes")
	}
	if recorder := h.request(t, http.MethodPost, "/alertes/read", testDeviceAgent, nil); recorder.Code != http.StatusOK {
		t.Fatalf("expected mark-all-read to succeed, got %d", recorder.Code)
	}
	count = decode[map[string]int64](t, h.request(t, http.MethodGet, "/alertes/count", testDeviceAgent, nil))
	if count["unread"] != 0 {
		t.Fatalf("expected no unread alerts, got %d", count["unread"])
	}
}

func TestExportImportAndClearRoutes(t *testing.T) {
	h := newAPIHarness(t)
	h.login(t)
	if recorder := h.request(t, http.MethodPost, "/clients", testDeviceAgent, gin.H{"nom": "Agbo", "prenoms": "Kossi", "telephone": "1"}); recorder.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", recorder.Code)
	}

	exported := h.request(t, http.MethodGet, "/export", testDeviceAgent, nil)
	if exported.Code != http.StatusOK {
		t.Fatalf("expected export, got %d", exported.Code)
	}
	if !strings.Contains(exported.Header().Get("Content-Disposition"), "coutupro-") {
		t.Fatalf("expected attachment header, got %q", exported.Header().Get("Content-Disposition"))
	}
	document := exported.Body.String()

	if recorder := h.request(t, http.MethodPost, "/import", testDeviceAgent, document); recorder.Code != http.StatusConflict {
		t.Fatalf("expected re-import to conflict, got %d", recorder.Code)
	}
	if recorder := h.request(t, http.MethodPost, "/import", testDeviceAgent, `{"version":"1.0"}`); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected old version to be rejected, got %d", recorder.Code)
	}
	if recorder := h.request(t, http.MethodPost, "/clear", testDeviceAgent, nil); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected clear to succeed, got %d", recorder.Code)
	}

	imported := h.request(t, http.MethodPost, "/import", testDeviceAgent, document)
	if imported.Code != http.StatusOK {
		t.Fatalf("expected import after clear, got %d %s", imported.Code, imported.Body.String())
	}
	if report := decode[backup.ImportReport](t, imported); report.Clients != 1 {
		t.Fatalf("unexpected report %#v", report)
	}
}

func TestAlerteStreamEmitsCommittedAlerts(t *testing.T) {
	h := newAPIHarness(t)
	h.login(t)
	server := httptest.NewServer(h.handler)
	t.Cleanup(server.Close)

	streamRequest, err := http.NewRequest(http.MethodGet, server.URL+"/alertes/stream", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamRequest.Header.Set("User-Agent", testDeviceAgent)
	streamRequest.Header.Set("Accept-Language", "fr-BJ")
	streamRequest.Header.Set(headerDeviceScreen, "1080x2400")
	streamRequest.AddCookie(h.cookie)
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() { _ = streamResp.Body.Close() })
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}

	if recorder := h.request(t, http.MethodPost, "/clients", testDeviceAgent, gin.H{"nom": "Hounsou", "prenoms": "Aïcha", "telephone": "2"}); recorder.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", recorder.Code)
	}

	reader := bufio.NewReader(streamResp.Body)
	type readResult struct {
		line string
		err  error
	}
	currentEventType := ""
	deadline := time.After(5 * time.Second)
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := reader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for alert event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEventType != RealtimeEventAlerte {
				continue
			}
			var payload streamEventPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if payload.Alerte == nil || payload.Alerte.Titre != "Nouveau client" {
				t.Fatalf("unexpected alert payload %#v", payload.Alerte)
			}
			return
		}
	}
}
