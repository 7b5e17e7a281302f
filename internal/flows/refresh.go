package flows

import (
	"context"
	"errors"

	"github.com/VilnaCRM-Org/user-service-sub004/refresh"
	"github.com/redis/go-redis/v9"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureRevoked
	RefreshFailureTheft
	RefreshFailureSessionInactive
	RefreshFailureBackend
	RefreshFailureIssue
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureDecode:
		return "decode"
	case RefreshFailureNotFound:
		return "not_found"
	case RefreshFailureExpired:
		return "expired"
	case RefreshFailureRevoked:
		return "revoked"
	case RefreshFailureTheft:
		return "theft"
	case RefreshFailureSessionInactive:
		return "session_inactive"
	case RefreshFailureBackend:
		return "backend"
	case RefreshFailureIssue:
		return "issue"
	default:
		return "unknown"
	}
}

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	Reason    string
	SessionID string
	UserID    string

	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

type RefreshDeps struct {
	Sessions SessionStore
	Refresh  RefreshStore
	Access   AccessIssuer
	Users    Users

	// TreatRevokedAsTheft classifies redemption of a revoked token like
	// reuse of a spent one.
	TreatRevokedAsTheft bool

	Hooks  Hooks
	Errors Errors
}

// RunRefresh redeems a refresh token once and returns its successor.
// Presenting a token that was already redeemed (or revoked, see
// TreatRevokedAsTheft) revokes the whole chain and the owning session.
func RunRefresh(ctx context.Context, presented, ip string, deps RefreshDeps) RefreshResult {
	deps.Hooks.normalize()
	h := deps.Hooks
	if deps.Sessions == nil || deps.Refresh == nil || deps.Access == nil || deps.Users == nil {
		return RefreshResult{Failure: RefreshFailureBackend, Err: deps.Errors.EngineNotReady}
	}

	tokenID, secret, err := refresh.Decode(presented)
	if err != nil {
		h.MetricInc(h.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureDecode, Err: deps.Errors.AuthenticationRequired, Reason: err.Error()}
	}

	nextID, err := refresh.NewTokenID()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err}
	}
	nextSecret, err := refresh.NewSecret()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err}
	}

	now := h.Now()
	res, err := deps.Refresh.Redeem(ctx, tokenID, secret.Hash(), nextID, nextSecret.Hash(), now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureBackend, Err: deps.Errors.BackendUnavailable, Reason: err.Error()}
	}

	switch res.Status {
	case refresh.RedeemNotFound:
		h.MetricInc(h.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureNotFound, Err: deps.Errors.AuthenticationRequired}
	case refresh.RedeemExpired:
		h.MetricInc(h.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureExpired, Err: deps.Errors.AuthenticationRequired, SessionID: res.SessionID, UserID: res.UserID}
	case refresh.RedeemUsed:
		return handleTheft(ctx, deps, res, ip, ReasonDoubleGraceUse)
	case refresh.RedeemRevoked:
		if deps.TreatRevokedAsTheft {
			return handleTheft(ctx, deps, res, ip, ReasonRevokedTokenReuse)
		}
		h.MetricInc(h.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureRevoked, Err: deps.Errors.AuthenticationRequired, SessionID: res.SessionID, UserID: res.UserID}
	}

	sess, err := deps.Sessions.Get(ctx, res.SessionID, now)
	if err != nil && !errors.Is(err, redis.Nil) {
		return RefreshResult{Failure: RefreshFailureBackend, Err: deps.Errors.BackendUnavailable, Reason: err.Error()}
	}
	if err != nil || !sess.Active(now.Unix()) || sess.UserID != res.UserID {
		return closeChain(ctx, deps, res, RefreshFailureSessionInactive, "session inactive")
	}

	user, err := deps.Users.ByID(ctx, res.UserID)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return closeChain(ctx, deps, res, RefreshFailureSessionInactive, "user gone")
		}
		return RefreshResult{Failure: RefreshFailureBackend, Err: deps.Errors.BackendUnavailable, Reason: err.Error()}
	}

	access, err := deps.Access.CreateAccess(user.Email, res.SessionID, rolesOf(user), now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err}
	}
	next, err := refresh.Encode(nextID, nextSecret)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err}
	}

	h.MetricInc(h.Metrics.RefreshSuccess)
	h.Emit(ctx, Event{
		Name:      EventRefreshTokenRotated,
		UserID:    res.UserID,
		SessionID: res.SessionID,
		IP:        ip,
		Fields:    map[string]string{"oldTokenRevoked": "true"},
	})

	return RefreshResult{
		SessionID:    res.SessionID,
		UserID:       res.UserID,
		AccessToken:  access,
		RefreshToken: next,
		ExpiresAt:    res.ExpiresAt,
	}
}

func handleTheft(ctx context.Context, deps RefreshDeps, res refresh.RedeemResult, ip, reason string) RefreshResult {
	h := deps.Hooks
	if _, err := deps.Refresh.RevokeChain(ctx, res.SessionID); err != nil {
		h.Warn("refresh: chain revoke after theft failed", "session_id", res.SessionID, "error", err)
	}
	if _, _, err := deps.Sessions.Revoke(ctx, res.SessionID, ReasonTheft, h.Now()); err != nil && !errors.Is(err, redis.Nil) {
		h.Warn("refresh: session revoke after theft failed", "session_id", res.SessionID, "error", err)
	}

	h.MetricInc(h.Metrics.RefreshTheft)
	h.Emit(ctx, Event{
		Name:      EventRefreshTokenTheftDetected,
		UserID:    res.UserID,
		SessionID: res.SessionID,
		IP:        ip,
		Fields:    map[string]string{"reason": reason},
	})

	return RefreshResult{
		Failure:   RefreshFailureTheft,
		Err:       deps.Errors.TheftDetected,
		Reason:    reason,
		SessionID: res.SessionID,
		UserID:    res.UserID,
	}
}

// closeChain revokes a chain whose session can no longer be refreshed.
func closeChain(ctx context.Context, deps RefreshDeps, res refresh.RedeemResult, kind RefreshFailureKind, reason string) RefreshResult {
	if _, err := deps.Refresh.RevokeChain(ctx, res.SessionID); err != nil {
		deps.Hooks.Warn("refresh: chain revoke failed", "session_id", res.SessionID, "error", err)
	}
	deps.Hooks.MetricInc(deps.Hooks.Metrics.RefreshFailure)
	return RefreshResult{
		Failure:   kind,
		Err:       deps.Errors.AuthenticationRequired,
		Reason:    reason,
		SessionID: res.SessionID,
		UserID:    res.UserID,
	}
}
