package atelier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%04d", p.prefix, p.next), nil
}

type failingIDProvider struct{}

func (failingIDProvider) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *manualClock) Set(value time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = value
}

type recordingNotifier struct {
	mu      sync.Mutex
	alertes []Alerte
}

func (n *recordingNotifier) AlerteCreated(alerte Alerte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alertes = append(n.alertes, alerte)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alertes)
}

type fixture struct {
	db       *gorm.DB
	clock    *manualClock
	notifier *recordingNotifier
	services *Services
}

var testEpoch = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func mustDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:atelier_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := mustDatabase(t)
	clock := &manualClock{current: testEpoch}
	notifier := &recordingNotifier{}
	services, err := NewServices(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequentialIDProvider{prefix: "rec"},
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("failed to create services: %v", err)
	}
	return &fixture{db: db, clock: clock, notifier: notifier, services: services}
}

func (f *fixture) mustClient(t *testing.T, nom, prenoms string) Client {
	t.Helper()
	client, err := f.services.Clients.Create(context.Background(), ClientInput{
		Nom:       nom,
		Prenoms:   prenoms,
		Telephone: "+229 97 00 00 00",
	})
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	return client
}

func (f *fixture) mustMesures(t *testing.T, clientID string) Mesures {
	t.Helper()
	mesures, err := f.services.Mesures.Create(context.Background(), MesuresInput{
		ClientID:     clientID,
		Measurements: Measurements{TourPoitrine: 92, TourTaille: 74, TourBassin: 101},
	})
	if err != nil {
		t.Fatalf("create mesures failed: %v", err)
	}
	return mesures
}

func (f *fixture) mustCommande(t *testing.T, client Client, mesures Mesures, total, acompte int64) Commande {
	t.Helper()
	commande, err := f.services.Commandes.Create(context.Background(), CommandeInput{
		ClientID:            client.ID,
		MesuresID:           mesures.ID,
		Modele:              "Robe wax",
		DateLivraisonPrevue: f.clock.Now().Add(7 * 24 * time.Hour),
		MontantTotal:        total,
		Acompte:             acompte,
	})
	if err != nil {
		t.Fatalf("create commande failed: %v", err)
	}
	return commande
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, condition string, args ...interface{}) int64 {
	t.Helper()
	query := db.Model(model)
	if condition != "" {
		query = query.Where(condition, args...)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func int64Pointer(value int64) *int64 {
	return &value
}
