package access

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var gateEpoch = time.Date(2026, time.April, 2, 7, 30, 0, 0, time.UTC)

func newTestGate(t *testing.T) (*Gate, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:access_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	gate, err := NewGate(GateConfig{
		Database:   db,
		Clock:      func() time.Time { return gateEpoch },
		IDProvider: atelier.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}
	return gate, db
}

func browser(userAgent string) Characteristics {
	return Characteristics{
		UserAgent:        userAgent,
		Language:         "fr-BJ",
		Platform:         "Linux armv8l",
		ScreenResolution: "1080x2400",
		Timezone:         "Africa/Porto-Novo",
		RenderSample:     "data:image/png;base64,AAAA",
	}
}

func TestCodeIsConsumedAtMostOnce(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()
	if _, err := gate.IssueCode(ctx, "atelier-2026"); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	first := Fingerprint(browser("Mozilla/5.0 Chrome"))
	second := Fingerprint(browser("Mozilla/5.0 Firefox"))

	accepted, err := gate.ValidateAndConsumeCode(ctx, "ATELIER-2026", first)
	if err != nil || !accepted {
		t.Fatalf("expected first validation to succeed, got %v (%v)", accepted, err)
	}
	for _, fingerprint := range []string{first, second} {
		accepted, err := gate.ValidateAndConsumeCode(ctx, "atelier-2026", fingerprint)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if accepted {
			t.Fatalf("expected consumed code to be rejected")
		}
	}

	codes, err := gate.ListCodes(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(codes) != 1 || !codes[0].IsUsed || codes[0].UsedBy != first || codes[0].UsedAt == nil {
		t.Fatalf("unexpected stored code %#v", codes)
	}
}

func TestUnknownCodeIsRejected(t *testing.T) {
	gate, _ := newTestGate(t)
	accepted, err := gate.ValidateAndConsumeCode(context.Background(), "nope", "hash")
	if err != nil || accepted {
		t.Fatalf("expected rejection, got %v (%v)", accepted, err)
	}
	if _, err := gate.Login(context.Background(), "nope", "hash"); !errors.Is(err, ErrCodeRejected) {
		t.Fatalf("expected ErrCodeRejected, got %v", err)
	}
}

func TestIssueCodeGeneratesAndRejectsDuplicates(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()
	generated, err := gate.IssueCode(ctx, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if len(generated.Code) != generatedCodeLength {
		t.Fatalf("expected generated code of length %d, got %q", generatedCodeLength, generated.Code)
	}
	if _, err := gate.IssueCode(ctx, generated.Code); !errors.Is(err, ErrCodeExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestValidateSessionRequiresSameFingerprint(t *testing.T) {
	gate, db := newTestGate(t)
	ctx := context.Background()
	if _, err := gate.IssueCode(ctx, "BOUTIQUE1"); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	device := browser("Mozilla/5.0 Chrome")
	user, err := gate.Login(ctx, "BOUTIQUE1", Fingerprint(device))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !gate.Authenticated() {
		t.Fatalf("expected authenticated after login")
	}
	current, err := gate.CurrentUser(ctx)
	if err != nil || current.ID != user.ID {
		t.Fatalf("expected current user %s, got %#v (%v)", user.ID, current, err)
	}

	ok, err := gate.ValidateSession(ctx, Fingerprint(device))
	if err != nil || !ok {
		t.Fatalf("expected same device to validate, got %v (%v)", ok, err)
	}

	mutations := []func(*Characteristics){
		func(c *Characteristics) { c.UserAgent = "Mozilla/5.0 Safari" },
		func(c *Characteristics) { c.Language = "en-US" },
		func(c *Characteristics) { c.ScreenResolution = "1920x1080" },
		func(c *Characteristics) { c.RenderSample = "different" },
	}
	for index, mutate := range mutations {
		changed := device
		mutate(&changed)
		if Fingerprint(changed) == Fingerprint(device) {
			t.Fatalf("mutation %d did not change the fingerprint", index)
		}
	}

	changed := device
	changed.UserAgent = "Mozilla/5.0 Safari"
	ok, err = gate.ValidateSession(ctx, Fingerprint(changed))
	if err != nil || ok {
		t.Fatalf("expected mismatched device to fail, got %v (%v)", ok, err)
	}
	if gate.Authenticated() {
		t.Fatalf("expected session torn down after mismatch")
	}
	var bindings int64
	db.Model(&DeviceBinding{}).Count(&bindings)
	if bindings != 0 {
		t.Fatalf("expected binding cleared, got %d", bindings)
	}

	ok, err = gate.ValidateSession(ctx, Fingerprint(device))
	if err != nil || ok {
		t.Fatalf("expected no session after teardown, got %v (%v)", ok, err)
	}
}

func TestRestoreRevalidatesStoredBinding(t *testing.T) {
	gate, db := newTestGate(t)
	ctx := context.Background()
	if _, err := gate.IssueCode(ctx, "RESTORE1"); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	fingerprint := Fingerprint(HostCharacteristics())
	if _, err := gate.Login(ctx, "RESTORE1", fingerprint); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	restarted, err := NewGate(GateConfig{Database: db, IDProvider: atelier.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("new gate failed: %v", err)
	}
	if restarted.Authenticated() {
		t.Fatalf("expected fresh process to start unauthenticated")
	}
	ok, err := restarted.Restore(ctx, fingerprint)
	if err != nil || !ok || !restarted.Authenticated() {
		t.Fatalf("expected restore to authenticate, got %v (%v)", ok, err)
	}
	if err := restarted.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if restarted.Authenticated() {
		t.Fatalf("expected logout to clear session")
	}
}

func TestCreateSessionUserRequiresConsumedCode(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()
	if _, err := gate.IssueCode(ctx, "FRESH"); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := gate.CreateSessionUser(ctx, "FRESH"); !errors.Is(err, ErrCodeRejected) {
		t.Fatalf("expected unconsumed code to be rejected, got %v", err)
	}
	if _, err := gate.BindSession(ctx, "hash"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}
}

type switchableIDProvider struct {
	next atelier.IDProvider
	fail bool
}

func (p *switchableIDProvider) NewID() (string, error) {
	if p.fail {
		return "", errors.New("entropy exhausted")
	}
	return p.next.NewID()
}

func TestLoginFailureLeavesCodeUsable(t *testing.T) {
	gate, db := newTestGate(t)
	ctx := context.Background()
	ids := &switchableIDProvider{next: atelier.NewUUIDProvider()}
	gate.ids = ids
	if _, err := gate.IssueCode(ctx, "ATELIER-RETRY"); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	fingerprint := Fingerprint(browser("Mozilla/5.0 Chrome"))

	ids.fail = true
	if _, err := gate.Login(ctx, "atelier-retry", fingerprint); err == nil || errors.Is(err, ErrCodeRejected) {
		t.Fatalf("expected an internal login failure, got %v", err)
	}
	if gate.Authenticated() {
		t.Fatalf("expected no session after a failed login")
	}
	var code AccessCode
	if err := db.Where("code = ?", "ATELIER-RETRY").Take(&code).Error; err != nil {
		t.Fatalf("load code failed: %v", err)
	}
	if code.IsUsed || code.UsedBy != "" {
		t.Fatalf("expected the code to stay unused, got %#v", code)
	}
	var users, bindings int64
	db.Model(&User{}).Count(&users)
	db.Model(&DeviceBinding{}).Count(&bindings)
	if users != 0 || bindings != 0 {
		t.Fatalf("expected no user or binding, got %d users and %d bindings", users, bindings)
	}

	ids.fail = false
	user, err := gate.Login(ctx, "atelier-retry", fingerprint)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if ok, err := gate.ValidateSession(ctx, fingerprint); err != nil || !ok {
		t.Fatalf("expected bound session for %s, got %v (%v)", user.ID, ok, err)
	}
}
