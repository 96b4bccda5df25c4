package atelier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClientCreateValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)
	_, err := f.services.Clients.Create(context.Background(), ClientInput{Nom: "  ", Telephone: "0102"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation details, got %T", err)
	}
	if validationErr.Violations["nom"] != "required" || validationErr.Violations["prenoms"] != "required" {
		t.Fatalf("unexpected violations %#v", validationErr.Violations)
	}
	if count := countRows(t, f.db, &Client{}, ""); count != 0 {
		t.Fatalf("expected no client stored, got %d", count)
	}
	if count := countRows(t, f.db, &Alerte{}, ""); count != 0 {
		t.Fatalf("expected no alert stored, got %d", count)
	}
}

func TestClientCreateRaisesGeneralAlert(t *testing.T) {
	f := newFixture(t)
	client := f.mustClient(t, "Agossou", "Hervé")

	alertes, err := f.services.Alertes.ListByClient(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("list alertes failed: %v", err)
	}
	if len(alertes) != 1 {
		t.Fatalf("expected one alert, got %d", len(alertes))
	}
	if alertes[0].Type != AlerteGeneral || alertes[0].Priorite != PrioriteNormale || alertes[0].Titre != "Nouveau client" {
		t.Fatalf("unexpected alert %#v", alertes[0])
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected notifier to see one alert, got %d", f.notifier.count())
	}
}

func TestClientDeleteCascadesEverythingReferencingIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doomed := f.mustClient(t, "Quenum", "Arlette")
	kept := f.mustClient(t, "Fagla", "Rodrigue")

	doomedMesures := f.mustMesures(t, doomed.ID)
	first := f.mustCommande(t, doomed, doomedMesures, 30000, 10000)
	second := f.mustCommande(t, doomed, doomedMesures, 12000, 0)
	if _, _, err := f.services.Paiements.Record(ctx, PaiementInput{CommandeID: second.ID, Montant: 2000}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := f.services.Retouches.Create(ctx, RetoucheInput{CommandeID: first.ID, Description: "Raccourcir", DatePrevue: testEpoch.Add(48 * time.Hour)}); err != nil {
		t.Fatalf("create retouche failed: %v", err)
	}
	keptCommande := f.mustCommande(t, kept, f.mustMesures(t, kept.ID), 9000, 1000)

	keptAlertes := countRows(t, f.db, &Alerte{}, "client_id = ?", kept.ID)

	if err := f.services.Clients.Delete(ctx, doomed.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := f.services.Clients.Get(ctx, doomed.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected client gone, got %v", err)
	}
	if count := countRows(t, f.db, &Mesures{}, "client_id = ?", doomed.ID); count != 0 {
		t.Fatalf("expected no mesures left, got %d", count)
	}
	if count := countRows(t, f.db, &Commande{}, "client_id = ?", doomed.ID); count != 0 {
		t.Fatalf("expected no commandes left, got %d", count)
	}
	orphanIDs := []string{first.ID, second.ID}
	for name, model := range map[string]interface{}{"paiements": &Paiement{}, "retouches": &Retouche{}, "alertes": &Alerte{}} {
		if count := countRows(t, f.db, model, "commande_id IN ?", orphanIDs); count != 0 {
			t.Fatalf("expected no %s left, got %d", name, count)
		}
	}
	if count := countRows(t, f.db, &Alerte{}, "client_id = ?", doomed.ID); count != 0 {
		t.Fatalf("expected no client alerts left, got %d", count)
	}

	if _, err := f.services.Commandes.Get(ctx, keptCommande.ID); err != nil {
		t.Fatalf("expected unrelated order to survive, got %v", err)
	}
	if count := countRows(t, f.db, &Paiement{}, "commande_id = ?", keptCommande.ID); count != 1 {
		t.Fatalf("expected unrelated ledger to survive, got %d", count)
	}
	if count := countRows(t, f.db, &Alerte{}, "client_id = ?", kept.ID); count != keptAlertes {
		t.Fatalf("expected unrelated alerts to survive, got %d of %d", count, keptAlertes)
	}
}

func TestClientDeleteMissingIDReturnsNotFound(t *testing.T) {
	f := newFixture(t)
	if err := f.services.Clients.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientSearchIgnoresCaseAndAccents(t *testing.T) {
	f := newFixture(t)
	target := f.mustClient(t, "Agossou", "Hervé")
	f.mustClient(t, "Lokossou", "Marius")

	testCases := []string{"herve", "HERVÉ", "agos", "97 00"}
	for _, query := range testCases {
		matches, err := f.services.Clients.Search(context.Background(), query)
		if err != nil {
			t.Fatalf("search %q failed: %v", query, err)
		}
		if query == "97 00" {
			if len(matches) != 2 {
				t.Fatalf("expected phone query to match both clients, got %d", len(matches))
			}
			continue
		}
		if len(matches) != 1 || matches[0].ID != target.ID {
			t.Fatalf("search %q: expected only %s, got %#v", query, target.ID, matches)
		}
	}
}

func TestClientUpdateRefreshesUpdatedAt(t *testing.T) {
	f := newFixture(t)
	client := f.mustClient(t, "Sagbo", "Pélagie")
	later := testEpoch.Add(time.Hour)
	f.clock.Set(later)

	email := "pelagie@example.com"
	updated, err := f.services.Clients.Update(context.Background(), client.ID, ClientPatch{Email: &email})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Email != email || updated.Nom != "Sagbo" {
		t.Fatalf("unexpected patch result %#v", updated)
	}
	if !updated.UpdatedAt.Equal(later) || !updated.CreatedAt.Equal(testEpoch) {
		t.Fatalf("expected createdAt kept and updatedAt refreshed, got %v / %v", updated.CreatedAt, updated.UpdatedAt)
	}
}

func TestNotifierSeesNothingWhenTransactionFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.services.Mesures.Create(context.Background(), MesuresInput{ClientID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.notifier.count() != 0 {
		t.Fatalf("expected no notification, got %d", f.notifier.count())
	}
	if count := countRows(t, f.db, &Alerte{}, ""); count != 0 {
		t.Fatalf("expected no alert stored, got %d", count)
	}
}

func TestNewServicesRequiresDependencies(t *testing.T) {
	if _, err := NewServices(ServiceConfig{IDProvider: NewUUIDProvider()}); err == nil {
		t.Fatalf("expected missing database error")
	}
	if _, err := NewServices(ServiceConfig{Database: mustDatabase(t)}); err == nil {
		t.Fatalf("expected missing id provider error")
	}
}

func TestIDGenerationFailureIsReported(t *testing.T) {
	services, err := NewServices(ServiceConfig{Database: mustDatabase(t), IDProvider: failingIDProvider{}})
	if err != nil {
		t.Fatalf("new services failed: %v", err)
	}
	_, err = services.Clients.Create(context.Background(), ClientInput{Nom: "A", Prenoms: "B", Telephone: "C"})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "atelier.clients.create.id_generation_failed" {
		t.Fatalf("unexpected error %v", err)
	}
}
