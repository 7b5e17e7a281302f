package userauth

import (
	"context"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
)

// SignOut revokes one session of the user and its refresh chain. Signing
// out twice is not an error. A session owned by someone else is reported as
// [ErrSessionNotFound].
func (e *Engine) SignOut(ctx context.Context, cmd SignOut) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunSignOut(ctx, cmd.SessionID, cmd.UserID, e.sessionDeps())
}

// SignOutAll revokes every active session of the user and returns how many
// were revoked.
func (e *Engine) SignOutAll(ctx context.Context, cmd SignOutAll) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return flows.RunSignOutAll(ctx, cmd.UserID, e.sessionDeps())
}

// ActiveSessions lists the user's sessions that are neither revoked nor
// expired, newest first as stored.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	list, err := flows.RunActiveSessions(ctx, userID, e.sessionDeps())
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, SessionInfo{
			SessionID:     s.SessionID,
			IP:            s.IP,
			UserAgent:     s.UserAgent,
			TwoFactorUsed: s.TwoFactorUsed,
			RememberMe:    s.RememberMe,
			CreatedAt:     unixTime(s.CreatedAt),
			ExpiresAt:     unixTime(s.ExpiresAt),
		})
	}
	return out, nil
}
