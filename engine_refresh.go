package userauth

import (
	"context"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
)

// RefreshToken redeems a refresh token exactly once and returns its
// successor together with a new access token. The successor keeps the
// chain's absolute expiry.
//
// Presenting a spent token returns [ErrTheftDetected] after revoking the
// whole chain and its session. Unknown, expired or otherwise unusable
// tokens return [ErrAuthenticationRequired].
func (e *Engine) RefreshToken(ctx context.Context, cmd RefreshToken) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, cmd.RefreshToken, firstNonEmpty(cmd.IP, clientIPFromContext(ctx)), flows.RefreshDeps{
		Sessions:            e.sessions,
		Refresh:             e.refresh,
		Access:              e.jwt,
		Users:               e.users,
		TreatRevokedAsTheft: e.config.Refresh.TreatRevokedAsTheft,
		Hooks:               e.hooks(),
		Errors:              flowErrors(),
	})
	if res.Failure != flows.RefreshFailureNone {
		e.logger.DebugContext(ctx, "refresh: rejected",
			"kind", res.Failure.String(),
			"reason", res.Reason,
			"session_id", res.SessionID,
		)
		return nil, res.Err
	}

	return &TokenPair{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		SessionID:    res.SessionID,
		ExpiresAt:    unixTime(res.ExpiresAt),
	}, nil
}
