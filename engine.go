package userauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/i18n"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/audit"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/limiters"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/stores"
	"github.com/VilnaCRM-Org/user-service-sub004/jwt"
	"github.com/VilnaCRM-Org/user-service-sub004/mail"
	"github.com/VilnaCRM-Org/user-service-sub004/password"
	"github.com/VilnaCRM-Org/user-service-sub004/refresh"
	"github.com/VilnaCRM-Org/user-service-sub004/session"
)

// Engine is the authentication core. Build it with [New]; the zero value is
// not usable and every method then returns [ErrEngineNotReady].
type Engine struct {
	config Config

	sessions *session.Store
	refresh  *refresh.Store
	pending  *stores.PendingTwoFactorStore
	resets   *stores.PasswordResetStore

	lockout          *limiters.LockoutLimiter
	resetLimiter     *limiters.PasswordResetLimiter
	twoFactorLimiter *limiters.TwoFactorLimiter

	jwt       *jwt.Manager
	hasher    *password.Hasher
	totp      *totpGenerator
	dummyHash string

	users      *userAdapter
	mailer     mail.Sender
	translator i18n.Translator
	logger     *slog.Logger
	events     *audit.Dispatcher
	metrics    *Metrics
	clock      func() time.Time
}

// Close flushes pending events. The Redis client and user store are owned
// by the caller and stay open.
func (e *Engine) Close() {
	if e == nil || e.events == nil {
		return
	}
	e.events.Close()
}

// EventsDropped reports events discarded because the dispatch buffer was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

func (e *Engine) ready() bool {
	return e != nil && e.sessions != nil && e.users != nil && e.jwt != nil
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) hooks() flows.Hooks {
	return flows.Hooks{
		Now:       e.now,
		Emit:      e.emitEvent,
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		Warn:      e.logger.Warn,
		Debug:     e.logger.Debug,
		Metrics:   flowMetricIDs(),
	}
}

func flowErrors() flows.Errors {
	return flows.Errors{
		EngineNotReady:         ErrEngineNotReady,
		BackendUnavailable:     ErrBackendUnavailable,
		AuthenticationRequired: ErrAuthenticationRequired,
		InvalidToken:           ErrInvalidToken,
		InvalidClaims:          ErrInvalidClaims,
		InvalidCredentials:     ErrInvalidCredentials,
		AccountLocked:          ErrAccountLocked,
		TheftDetected:          ErrTheftDetected,
		SessionNotFound:        ErrSessionNotFound,

		TwoFactorInvalidCode:    ErrTwoFactorInvalidCode,
		TwoFactorRejected:       ErrTwoFactorRejected,
		TwoFactorNotEnabled:     ErrTwoFactorNotEnabled,
		TwoFactorAlreadyEnabled: ErrTwoFactorAlreadyEnabled,
		TwoFactorNotConfigured:  ErrTwoFactorNotConfigured,
		TwoFactorRateLimited:    ErrTwoFactorRateLimited,
		UserNotFound:            ErrUserNotFound,
		UserByEmailNotFound:     ErrUserByEmailNotFound,
		InvalidPassword:         ErrInvalidPassword,
		PasswordPolicy:          ErrPasswordPolicy,
		RateLimitExceeded:       ErrRateLimitExceeded,
		TokenNotFound:           ErrTokenNotFound,
		TokenMismatch:           ErrTokenMismatch,
		TokenAlreadyUsed:        ErrTokenAlreadyUsed,
		TokenExpired:            ErrTokenExpired,
	}
}

func (e *Engine) issueDeps() flows.IssueDeps {
	return flows.IssueDeps{
		Sessions:      e.sessions,
		Refresh:       e.refresh,
		Access:        e.jwt,
		RefreshTTL:    e.config.Refresh.TTL,
		RememberMeTTL: e.config.Refresh.RememberMeTTL,
	}
}

func (e *Engine) sessionDeps() flows.SessionDeps {
	return flows.SessionDeps{
		Sessions: e.sessions,
		Refresh:  e.refresh,
		Hooks:    e.hooks(),
		Errors:   flowErrors(),
	}
}

func (e *Engine) translate(ctx context.Context, key string, args ...any) string {
	if e == nil || e.translator == nil {
		return key
	}
	return e.translator.Translate(localeFromContext(ctx), key, args...)
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

/*
====================================
USER STORE ADAPTER
====================================
*/

// userAdapter presents a UserProvider to the flows. Missing accounts
// become flows.ErrNoUser; every other error passes through.
type userAdapter struct {
	provider UserProvider
}

func toRecord(u User) flows.UserRecord {
	return flows.UserRecord{
		ID:               u.ID,
		Email:            u.Email,
		Initials:         u.Initials,
		PasswordHash:     u.PasswordHash,
		Roles:            u.Roles,
		TwoFactorEnabled: u.TwoFactorEnabled,
		TwoFactorSecret:  u.TwoFactorSecret,
	}
}

func fromRecord(r flows.UserRecord) User {
	return User{
		ID:               r.ID,
		Email:            r.Email,
		Initials:         r.Initials,
		PasswordHash:     r.PasswordHash,
		Roles:            r.Roles,
		TwoFactorEnabled: r.TwoFactorEnabled,
		TwoFactorSecret:  r.TwoFactorSecret,
	}
}

func mapLookupError(err error) error {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserByEmailNotFound) {
		return flows.ErrNoUser
	}
	return err
}

func (a *userAdapter) ByEmail(ctx context.Context, email string) (flows.UserRecord, error) {
	u, err := a.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return flows.UserRecord{}, mapLookupError(err)
	}
	return toRecord(u), nil
}

func (a *userAdapter) ByID(ctx context.Context, userID string) (flows.UserRecord, error) {
	u, err := a.provider.GetUserByID(ctx, userID)
	if err != nil {
		return flows.UserRecord{}, mapLookupError(err)
	}
	return toRecord(u), nil
}

func (a *userAdapter) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return a.provider.UpdatePasswordHash(ctx, userID, hash)
}

func (a *userAdapter) SetTwoFactorSecret(ctx context.Context, userID string, secret []byte) error {
	return a.provider.SetTwoFactorSecret(ctx, userID, secret)
}

func (a *userAdapter) EnableTwoFactor(ctx context.Context, userID string, recoveryHashes [][32]byte) error {
	return a.provider.EnableTwoFactor(ctx, userID, recoveryHashes)
}

func (a *userAdapter) DisableTwoFactor(ctx context.Context, userID string) error {
	return a.provider.DisableTwoFactor(ctx, userID)
}

func (a *userAdapter) MarkTwoFactorStep(ctx context.Context, userID string, step int64) (bool, error) {
	return a.provider.MarkTwoFactorStep(ctx, userID, step)
}

func (a *userAdapter) ReplaceRecoveryCodes(ctx context.Context, userID string, hashes [][32]byte) error {
	return a.provider.ReplaceRecoveryCodes(ctx, userID, hashes)
}

func (a *userAdapter) HasRecoveryCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	return a.provider.HasRecoveryCode(ctx, userID, hash)
}

func (a *userAdapter) ConsumeRecoveryCode(ctx context.Context, userID string, hash [32]byte) (int, bool, error) {
	return a.provider.ConsumeRecoveryCode(ctx, userID, hash)
}
