package access

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	generatedCodeLength = 10
	codeAlphabet        = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	// ErrCodeRejected indicates an unknown or already consumed access code.
	ErrCodeRejected = errors.New("access: code rejected")
	// ErrSessionMismatch indicates the presenting device is not the bound one.
	ErrSessionMismatch = errors.New("access: session device mismatch")
	// ErrNoSession indicates that no user has been created on this device yet.
	ErrNoSession = errors.New("access: no session")
	// ErrCodeExists indicates an attempt to issue a code that already exists.
	ErrCodeExists = errors.New("access: code already exists")

	errMissingDatabase   = errors.New("access: database connection required")
	errMissingIDProvider = errors.New("access: id provider required")
)

// GateConfig describes the dependencies of the access gate.
type GateConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider atelier.IDProvider
	Logger     *zap.Logger
}

// Gate guards the application with single-use codes bound to one device.
// The authenticated flag is process-wide.
type Gate struct {
	db            *gorm.DB
	now           func() time.Time
	ids           atelier.IDProvider
	logger        *zap.Logger
	authenticated atomic.Bool
}

// NewGate validates the configuration and constructs a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{db: cfg.Database, now: clock, ids: cfg.IDProvider, logger: logger}, nil
}

// IssueCode stores a new unused code. An empty code is replaced by a random one.
func (g *Gate) IssueCode(ctx context.Context, code string) (AccessCode, error) {
	code = normalizeCode(code)
	if code == "" {
		generated, err := randomCode()
		if err != nil {
			return AccessCode{}, fmt.Errorf("access: generate code: %w", err)
		}
		code = generated
	}
	id, err := g.ids.NewID()
	if err != nil {
		return AccessCode{}, fmt.Errorf("access: generate id: %w", err)
	}
	accessCode := AccessCode{ID: id, Code: code, CreatedAt: g.now().UTC()}
	result := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&accessCode)
	if result.Error != nil {
		g.logger.Error("access code insert failed", zap.Error(result.Error))
		return AccessCode{}, fmt.Errorf("access: insert code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return AccessCode{}, ErrCodeExists
	}
	return accessCode, nil
}

// ListCodes returns every code, newest first.
func (g *Gate) ListCodes(ctx context.Context) ([]AccessCode, error) {
	var codes []AccessCode
	if err := g.db.WithContext(ctx).Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("access: list codes: %w", err)
	}
	return codes, nil
}

// ValidateAndConsumeCode marks an unused code as used by the given device
// fingerprint. The update is conditional on the code still being unused, so
// a code is consumed at most once however many attempts race.
func (g *Gate) ValidateAndConsumeCode(ctx context.Context, code, fingerprint string) (bool, error) {
	accepted, err := g.consumeCode(g.db.WithContext(ctx), code, fingerprint)
	if err != nil {
		g.logger.Error("access code consume failed", zap.Error(err))
		return false, fmt.Errorf("access: consume code: %w", err)
	}
	return accepted, nil
}

func (g *Gate) consumeCode(tx *gorm.DB, code, fingerprint string) (bool, error) {
	code = normalizeCode(code)
	if code == "" {
		return false, nil
	}
	result := tx.Model(&AccessCode{}).
		Where("code = ? AND is_used = ?", code, false).
		Updates(map[string]interface{}{
			"is_used": true,
			"used_at": g.now().UTC(),
			"used_by": fingerprint,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CreateSessionUser records the local identity for a consumed code. Earlier
// users are deactivated.
func (g *Gate) CreateSessionUser(ctx context.Context, code string) (User, error) {
	var user User
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := g.createUser(tx, code)
		user = created
		return err
	})
	if errors.Is(err, ErrCodeRejected) {
		return User{}, err
	}
	if err != nil {
		g.logger.Error("access user create failed", zap.Error(err))
		return User{}, fmt.Errorf("access: create user: %w", err)
	}
	return user, nil
}

func (g *Gate) createUser(tx *gorm.DB, code string) (User, error) {
	code = normalizeCode(code)
	var consumed int64
	if err := tx.Model(&AccessCode{}).Where("code = ? AND is_used = ?", code, true).Count(&consumed).Error; err != nil {
		return User{}, err
	}
	if consumed == 0 {
		return User{}, ErrCodeRejected
	}
	id, err := g.ids.NewID()
	if err != nil {
		return User{}, fmt.Errorf("generate id: %w", err)
	}
	if err := tx.Model(&User{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
		return User{}, err
	}
	user := User{ID: id, Code: code, IsActive: true, CreatedAt: g.now().UTC()}
	if err := tx.Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// CurrentUser returns the most recently created user.
func (g *Gate) CurrentUser(ctx context.Context) (User, error) {
	return g.currentUser(g.db.WithContext(ctx))
}

func (g *Gate) currentUser(tx *gorm.DB) (User, error) {
	var user User
	err := tx.Order("created_at DESC").Order("id DESC").Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNoSession
	}
	if err != nil {
		return User{}, fmt.Errorf("access: load user: %w", err)
	}
	return user, nil
}

// BindSession stores the fingerprint hash as the session's device for the current user.
func (g *Gate) BindSession(ctx context.Context, fingerprint string) (DeviceBinding, error) {
	tx := g.db.WithContext(ctx)
	user, err := g.currentUser(tx)
	if err != nil {
		return DeviceBinding{}, err
	}
	binding, err := g.bind(tx, user.ID, fingerprint)
	if err != nil {
		g.logger.Error("access bind failed", zap.Error(err))
		return DeviceBinding{}, fmt.Errorf("access: bind session: %w", err)
	}
	g.authenticated.Store(true)
	return binding, nil
}

func (g *Gate) bind(tx *gorm.DB, userID, fingerprint string) (DeviceBinding, error) {
	binding := DeviceBinding{
		ID:              BindingID,
		UserID:          userID,
		FingerprintHash: fingerprint,
		BoundAt:         g.now().UTC(),
	}
	if err := tx.Save(&binding).Error; err != nil {
		return DeviceBinding{}, err
	}
	return binding, nil
}

// Login consumes the code, creates the user and binds the device in one
// transaction. A failure at any step leaves the code unused.
func (g *Gate) Login(ctx context.Context, code, fingerprint string) (User, error) {
	var user User
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accepted, err := g.consumeCode(tx, code, fingerprint)
		if err != nil {
			return fmt.Errorf("consume code: %w", err)
		}
		if !accepted {
			return ErrCodeRejected
		}
		created, err := g.createUser(tx, code)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if _, err := g.bind(tx, created.ID, fingerprint); err != nil {
			return fmt.Errorf("bind session: %w", err)
		}
		user = created
		return nil
	})
	if errors.Is(err, ErrCodeRejected) {
		return User{}, err
	}
	if err != nil {
		g.logger.Error("access login failed", zap.Error(err))
		return User{}, fmt.Errorf("access: login: %w", err)
	}
	g.authenticated.Store(true)
	g.logger.Info("session bound", zap.String("user_id", user.ID))
	return user, nil
}

// ValidateSession compares the presented fingerprint with the bound one. A
// mismatch tears the session down.
func (g *Gate) ValidateSession(ctx context.Context, fingerprint string) (bool, error) {
	var binding DeviceBinding
	err := g.db.WithContext(ctx).Where("id = ?", BindingID).Take(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		g.authenticated.Store(false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("access: load binding: %w", err)
	}
	if binding.FingerprintHash != fingerprint {
		g.logger.Warn("session device mismatch", zap.String("user_id", binding.UserID))
		if err := g.Logout(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	g.authenticated.Store(true)
	return true, nil
}

// Restore re-validates a stored session at startup.
func (g *Gate) Restore(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := g.ValidateSession(ctx, fingerprint)
	if err != nil {
		g.logger.Error("session restore failed", zap.Error(err))
		return false, err
	}
	g.logger.Info("session restored", zap.Bool("authenticated", ok))
	return ok, nil
}

// Authenticated reports the process-wide session state.
func (g *Gate) Authenticated() bool {
	return g.authenticated.Load()
}

// Logout clears the device binding and the session state.
func (g *Gate) Logout(ctx context.Context) error {
	g.authenticated.Store(false)
	if err := g.db.WithContext(ctx).Where("id = ?", BindingID).Delete(&DeviceBinding{}).Error; err != nil {
		g.logger.Error("access logout failed", zap.Error(err))
		return fmt.Errorf("access: clear binding: %w", err)
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() (string, error) {
	buffer := make([]byte, generatedCodeLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	for index, value := range buffer {
		buffer[index] = codeAlphabet[int(value)%len(codeAlphabet)]
	}
	return string(buffer), nil
}
