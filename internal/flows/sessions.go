package flows

import (
	"context"
	"errors"
	"strconv"

	"github.com/VilnaCRM-Org/user-service-sub004/session"
	"github.com/redis/go-redis/v9"
)

type SessionDeps struct {
	Sessions SessionStore
	Refresh  RefreshStore
	Hooks    Hooks
	Errors   Errors
}

// RunSignOut revokes one session owned by userID together with its refresh
// chain. Signing out an already revoked session succeeds without a second
// event.
func RunSignOut(ctx context.Context, sessionID, userID string, deps SessionDeps) error {
	deps.Hooks.normalize()
	if deps.Sessions == nil || deps.Refresh == nil {
		return deps.Errors.EngineNotReady
	}
	if sessionID == "" || userID == "" {
		return deps.Errors.SessionNotFound
	}

	sess, err := deps.Sessions.Get(ctx, sessionID, deps.Hooks.Now())
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, session.ErrSessionCorrupt) {
			return deps.Errors.SessionNotFound
		}
		return deps.Errors.BackendUnavailable
	}
	if sess.UserID != userID {
		return deps.Errors.SessionNotFound
	}

	_, changed, err := deps.Sessions.Revoke(ctx, sessionID, ReasonLogout, deps.Hooks.Now())
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return deps.Errors.SessionNotFound
		}
		return deps.Errors.BackendUnavailable
	}
	if _, err := deps.Refresh.RevokeChain(ctx, sessionID); err != nil {
		return deps.Errors.BackendUnavailable
	}
	if !changed {
		return nil
	}

	deps.Hooks.MetricInc(deps.Hooks.Metrics.Logout)
	deps.Hooks.Emit(ctx, Event{
		Name:      EventSessionRevoked,
		UserID:    userID,
		SessionID: sessionID,
		Fields:    map[string]string{"reason": ReasonLogout},
	})
	return nil
}

// RunSignOutAll revokes every active session of userID and returns how many
// were revoked.
func RunSignOutAll(ctx context.Context, userID string, deps SessionDeps) (int, error) {
	deps.Hooks.normalize()
	if deps.Sessions == nil || deps.Refresh == nil {
		return 0, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return 0, deps.Errors.UserNotFound
	}

	n, err := revokeUserSessions(ctx, deps, userID, "", ReasonUserInitiated)
	if err != nil {
		return 0, deps.Errors.BackendUnavailable
	}
	deps.Hooks.MetricInc(deps.Hooks.Metrics.LogoutAll)
	return n, nil
}

// RunActiveSessions lists the sessions a user can still refresh.
func RunActiveSessions(ctx context.Context, userID string, deps SessionDeps) ([]*session.Session, error) {
	deps.Hooks.normalize()
	if deps.Sessions == nil {
		return nil, deps.Errors.EngineNotReady
	}
	list, err := deps.Sessions.ListActive(ctx, userID, deps.Hooks.Now())
	if err != nil {
		return nil, deps.Errors.BackendUnavailable
	}
	return list, nil
}

// revokeUserSessions revokes every active session of userID except keep,
// revokes their refresh chains, and emits one AllSessionsRevoked event.
// Chain revocation failures are logged and do not fail the call; the
// session itself is already revoked.
func revokeUserSessions(ctx context.Context, deps SessionDeps, userID, keep, reason string) (int, error) {
	ids, err := deps.Sessions.RevokeAllForUser(ctx, userID, keep, reason, deps.Hooks.Now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := deps.Refresh.RevokeChain(ctx, id); err != nil {
			deps.Hooks.Warn("sessions: refresh chain revoke failed", "session_id", id, "error", err)
		}
	}

	deps.Hooks.Emit(ctx, Event{
		Name:      EventAllSessionsRevoked,
		UserID:    userID,
		SessionID: keep,
		Fields: map[string]string{
			"reason":       reason,
			"revokedCount": strconv.Itoa(len(ids)),
		},
	})
	return len(ids), nil
}
