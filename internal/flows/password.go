package flows

import (
	"context"
	"errors"
	"fmt"
)

type ChangePasswordDeps struct {
	Users    Users
	Sessions SessionStore
	Refresh  RefreshStore

	VerifyPassword func(plain, hash string) (bool, error)
	HashPassword   func(plain string) (string, error)
	CheckPolicy    func(plain string) error

	Hooks  Hooks
	Errors Errors
}

// RunChangePassword replaces the password after checking the old one and
// revokes every session except currentSessionID.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword, currentSessionID string, deps ChangePasswordDeps) error {
	deps.Hooks.normalize()
	h := deps.Hooks
	if deps.Users == nil || deps.VerifyPassword == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	user, err := deps.Users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return deps.Errors.UserNotFound
		}
		return deps.Errors.BackendUnavailable
	}

	ok, err := deps.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		return deps.Errors.InvalidPassword
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
	if err := deps.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return deps.Errors.BackendUnavailable
	}

	if deps.Sessions != nil && deps.Refresh != nil {
		sd := SessionDeps{Sessions: deps.Sessions, Refresh: deps.Refresh, Hooks: h, Errors: deps.Errors}
		if _, err := revokeUserSessions(ctx, sd, user.ID, currentSessionID, ReasonPasswordChanged); err != nil {
			h.Warn("change password: revoking sessions failed", "user_id", user.ID, "error", err)
		}
	}

	h.MetricInc(h.Metrics.PasswordChanged)
	h.Emit(ctx, Event{Name: EventPasswordChanged, UserID: user.ID, SessionID: currentSessionID})
	return nil
}
