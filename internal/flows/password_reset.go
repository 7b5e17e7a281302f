package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/stores"
)

// ResetLimiter throttles reset requests per email and per IP.
type ResetLimiter interface {
	CheckRequest(ctx context.Context, email, ip string) error
}

type ResetStore interface {
	Issue(ctx context.Context, userID string, newToken func() (string, error), ttl time.Duration, now time.Time) (*stores.PasswordResetRecord, bool, error)
	Check(ctx context.Context, token, userID string, now time.Time) (*stores.PasswordResetRecord, error)
	Consume(ctx context.Context, token, userID string, now time.Time) (*stores.PasswordResetRecord, error)
}

type PasswordResetDeps struct {
	Users    Users
	Limiter  ResetLimiter
	Store    ResetStore
	Sessions SessionStore
	Refresh  RefreshStore

	TokenTTL time.Duration
	NewToken func() (string, error)

	// SendResetEmail delivers the token out of band.
	SendResetEmail func(ctx context.Context, user UserRecord, token string, expiresAt time.Time) error
	CheckPolicy    func(plain string) error
	HashPassword   func(plain string) (string, error)
	IsRateLimited  func(error) bool

	Hooks  Hooks
	Errors Errors
}

// RunRequestPasswordReset issues (or reactivates) the user's reset token and
// sends it. Unknown emails succeed silently.
func RunRequestPasswordReset(ctx context.Context, email, ip string, deps PasswordResetDeps) error {
	deps.Hooks.normalize()
	h := deps.Hooks
	if deps.Users == nil || deps.Store == nil || deps.NewToken == nil || deps.SendResetEmail == nil {
		return deps.Errors.EngineNotReady
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	email = strings.TrimSpace(email)

	if deps.Limiter != nil {
		if err := deps.Limiter.CheckRequest(ctx, email, ip); err != nil {
			if deps.IsRateLimited(err) {
				h.MetricInc(h.Metrics.ResetRateLimited)
				return deps.Errors.RateLimitExceeded
			}
			return deps.Errors.BackendUnavailable
		}
	}

	user, err := deps.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			h.Debug("password reset: unknown email")
			return nil
		}
		return deps.Errors.BackendUnavailable
	}

	now := h.Now()
	record, reactivated, err := deps.Store.Issue(ctx, user.ID, deps.NewToken, deps.TokenTTL, now)
	if err != nil {
		return deps.Errors.BackendUnavailable
	}
	if err := deps.SendResetEmail(ctx, user, record.Token, time.Unix(record.ExpiresAt, 0)); err != nil {
		h.Warn("password reset: email not sent", "user_id", user.ID, "error", err)
		return deps.Errors.BackendUnavailable
	}

	h.MetricInc(h.Metrics.ResetRequest)
	h.Emit(ctx, Event{
		Name:   EventPasswordResetRequested,
		UserID: user.ID,
		IP:     ip,
		Fields: map[string]string{
			"email":       user.Email,
			"token":       record.Token,
			"reactivated": boolString(reactivated),
		},
	})
	return nil
}

// RunConfirmPasswordReset consumes the token and sets the new password. Token
// failures are reported in the order not found, mismatch, already used,
// expired.
func RunConfirmPasswordReset(ctx context.Context, token, newPassword, userID string, deps PasswordResetDeps) error {
	deps.Hooks.normalize()
	h := deps.Hooks
	if deps.Users == nil || deps.Store == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}
	now := h.Now()

	if _, err := deps.Store.Check(ctx, token, userID, now); err != nil {
		h.MetricInc(h.Metrics.ResetFailure)
		return mapResetError(err, deps.Errors)
	}
	if deps.CheckPolicy != nil {
		if err := deps.CheckPolicy(newPassword); err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err)
		}
	}
	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err)
	}

	if _, err := deps.Store.Consume(ctx, token, userID, now); err != nil {
		h.MetricInc(h.Metrics.ResetFailure)
		return mapResetError(err, deps.Errors)
	}
	if err := deps.Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNoUser) {
			return deps.Errors.UserNotFound
		}
		return deps.Errors.BackendUnavailable
	}

	if deps.Sessions != nil && deps.Refresh != nil {
		sd := SessionDeps{Sessions: deps.Sessions, Refresh: deps.Refresh, Hooks: h, Errors: deps.Errors}
		if _, err := revokeUserSessions(ctx, sd, userID, "", ReasonPasswordReset); err != nil {
			h.Warn("password reset: revoking sessions failed", "user_id", userID, "error", err)
		}
	}

	h.MetricInc(h.Metrics.ResetConfirm)
	h.Emit(ctx, Event{Name: EventPasswordResetConfirmed, UserID: userID})
	return nil
}

func mapResetError(err error, errs Errors) error {
	switch {
	case errors.Is(err, stores.ErrResetNotFound):
		return errs.TokenNotFound
	case errors.Is(err, stores.ErrResetMismatch):
		return errs.TokenMismatch
	case errors.Is(err, stores.ErrResetAlreadyUsed):
		return errs.TokenAlreadyUsed
	case errors.Is(err, stores.ErrResetExpired):
		return errs.TokenExpired
	default:
		return errs.BackendUnavailable
	}
}
