package flows

import (
	"context"
	"errors"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/stores"
	"github.com/VilnaCRM-Org/user-service-sub004/refresh"
	"github.com/VilnaCRM-Org/user-service-sub004/session"
)

// ErrNoUser is returned by [Users] lookups when the account does not exist.
// Every other lookup error is treated as a backend failure.
var ErrNoUser = errors.New("flows: user not found")

// UserRecord is the flow-local view of an account.
type UserRecord struct {
	ID           string
	Email        string
	Initials     string
	PasswordHash string
	Roles        []string

	TwoFactorEnabled bool
	TwoFactorSecret  []byte
}

// Users is the account store as seen by the flows.
type Users interface {
	ByEmail(ctx context.Context, email string) (UserRecord, error)
	ByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	SetTwoFactorSecret(ctx context.Context, userID string, secret []byte) error
	EnableTwoFactor(ctx context.Context, userID string, recoveryHashes [][32]byte) error
	DisableTwoFactor(ctx context.Context, userID string) error
	// MarkTwoFactorStep records step as used and reports false when it (or a
	// later step) was already recorded.
	MarkTwoFactorStep(ctx context.Context, userID string, step int64) (bool, error)
	ReplaceRecoveryCodes(ctx context.Context, userID string, hashes [][32]byte) error
	HasRecoveryCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
	ConsumeRecoveryCode(ctx context.Context, userID string, hash [32]byte) (remaining int, ok bool, err error)
}

type SessionStore interface {
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string, now time.Time) (*session.Session, error)
	Revoke(ctx context.Context, sessionID, reason string, now time.Time) (*session.Session, bool, error)
	RevokeAllForUser(ctx context.Context, userID, keep, reason string, now time.Time) ([]string, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]*session.Session, error)
}

type RefreshStore interface {
	Issue(ctx context.Context, t *refresh.Token, ttl time.Duration) error
	Redeem(ctx context.Context, tokenID string, secretHash [32]byte, nextID string, nextHash [32]byte, now time.Time) (refresh.RedeemResult, error)
	RevokeChain(ctx context.Context, sessionID string) (int, error)
}

type PendingStore interface {
	Save(ctx context.Context, pendingID string, record *stores.PendingTwoFactor, ttl time.Duration) error
	Get(ctx context.Context, pendingID string, now time.Time) (*stores.PendingTwoFactor, error)
	Delete(ctx context.Context, pendingID string) (bool, error)
	RecordFailure(ctx context.Context, pendingID string, maxAttempts int, now time.Time) (int, bool, error)
}

// AccessIssuer signs access tokens.
type AccessIssuer interface {
	CreateAccess(subject, sessionID string, roles []string, now time.Time) (string, error)
}

// Event is a flow-local audit record. Severity is assigned by the Engine
// from the event name.
type Event struct {
	Name      string
	UserID    string
	SessionID string
	IP        string
	UserAgent string
	Fields    map[string]string
}

// Hooks carries the side channels shared by every flow.
type Hooks struct {
	Now       func() time.Time
	Emit      func(context.Context, Event)
	MetricInc func(int)
	Warn      func(msg string, args ...any)
	Debug     func(msg string, args ...any)

	Metrics MetricIDs
}

func (h *Hooks) normalize() {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Emit == nil {
		h.Emit = func(context.Context, Event) {}
	}
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.Warn == nil {
		h.Warn = func(string, ...any) {}
	}
	if h.Debug == nil {
		h.Debug = func(string, ...any) {}
	}
}

// MetricIDs maps flow outcomes onto the Engine's counter IDs.
type MetricIDs struct {
	VerifySuccess     int
	VerifyFailure     int
	SignInSuccess     int
	SignInFailure     int
	SignInLocked      int
	SessionCreated    int
	TwoFactorRequired int
	TwoFactorSuccess  int
	TwoFactorFailure  int
	TwoFactorRejected int
	RecoveryCodeUsed  int
	RefreshSuccess    int
	RefreshFailure    int
	RefreshTheft      int
	Logout            int
	LogoutAll         int
	ResetRequest      int
	ResetRateLimited  int
	ResetConfirm      int
	ResetFailure      int
	PasswordChanged   int
}

// Errors carries the Engine's sentinel errors so flows never import the
// root package.
type Errors struct {
	EngineNotReady         error
	BackendUnavailable     error
	AuthenticationRequired error
	InvalidToken           error
	InvalidClaims          error
	InvalidCredentials     error
	AccountLocked          error
	TheftDetected          error
	SessionNotFound        error

	TwoFactorInvalidCode    error
	TwoFactorRejected       error
	TwoFactorNotEnabled     error
	TwoFactorAlreadyEnabled error
	TwoFactorNotConfigured  error
	TwoFactorRateLimited    error
	UserNotFound            error
	UserByEmailNotFound     error
	InvalidPassword         error
	PasswordPolicy          error
	RateLimitExceeded       error
	TokenNotFound           error
	TokenMismatch           error
	TokenAlreadyUsed        error
	TokenExpired            error
}
