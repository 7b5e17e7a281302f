package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/stores"
)

// SignInState is the sign-in state machine position.
type SignInState int

const (
	SignInIdle SignInState = iota
	SignInChecking
	SignInTokensIssued
	SignInPendingTwoFactor
	SignInRejected
)

func (s SignInState) String() string {
	switch s {
	case SignInIdle:
		return "idle"
	case SignInChecking:
		return "checking"
	case SignInTokensIssued:
		return "tokens_issued"
	case SignInPendingTwoFactor:
		return "pending_two_factor"
	case SignInRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type SignInInput struct {
	Email      string
	Password   string
	RememberMe bool
	IP         string
	UserAgent  string
}

type SignInResult struct {
	State     SignInState
	UserID    string
	Issued    *Issued
	PendingID string
}

// Lockout is the per-email failed sign-in counter.
type Lockout interface {
	Locked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) (int, bool, error)
	Reset(ctx context.Context, email string) error
	Duration() time.Duration
}

type SignInDeps struct {
	Users   Users
	Lockout Lockout
	Pending PendingStore
	Issue   IssueDeps

	VerifyPassword func(plain, hash string) (bool, error)
	NeedsUpgrade   func(hash string) (bool, error)
	HashPassword   func(plain string) (string, error)
	// DummyHash is verified for unknown emails so both failure paths cost
	// one hash comparison.
	DummyHash string

	PendingTTL   time.Duration
	NewPendingID func() (string, error)

	Hooks  Hooks
	Errors Errors
}

// RunSignIn checks credentials and either issues tokens or opens a pending
// two-factor session.
func RunSignIn(ctx context.Context, in SignInInput, deps SignInDeps) (SignInResult, error) {
	deps.Hooks.normalize()
	if deps.Users == nil || deps.VerifyPassword == nil {
		return SignInResult{State: SignInRejected}, deps.Errors.EngineNotReady
	}
	if deps.NewPendingID == nil {
		deps.NewPendingID = newUUID
	}
	email := strings.TrimSpace(in.Email)
	h := deps.Hooks

	if deps.Lockout != nil {
		locked, err := deps.Lockout.Locked(ctx, email)
		if err != nil {
			return SignInResult{State: SignInRejected}, deps.Errors.BackendUnavailable
		}
		if locked {
			h.MetricInc(h.Metrics.SignInLocked)
			emitSignInFailed(ctx, h, in, email, ReasonAccountLocked)
			return SignInResult{State: SignInRejected}, deps.Errors.AccountLocked
		}
	}

	user, err := deps.Users.ByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoUser):
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(in.Password, deps.DummyHash)
		}
		return rejectCredentials(ctx, deps, in, email)
	default:
		return SignInResult{State: SignInRejected}, deps.Errors.BackendUnavailable
	}

	ok, err := deps.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		h.Warn("sign-in: stored password hash unreadable", "user_id", user.ID, "error", err)
	}
	if err != nil || !ok {
		return rejectCredentials(ctx, deps, in, email)
	}

	if deps.Lockout != nil {
		if err := deps.Lockout.Reset(ctx, email); err != nil {
			h.Warn("sign-in: lockout reset failed", "user_id", user.ID, "error", err)
		}
	}
	upgradePasswordHash(ctx, deps, user, in.Password)

	now := h.Now()
	if user.TwoFactorEnabled {
		if deps.Pending == nil {
			return SignInResult{State: SignInRejected}, deps.Errors.EngineNotReady
		}
		pendingID, err := deps.NewPendingID()
		if err != nil {
			return SignInResult{State: SignInRejected}, err
		}
		if err := deps.Pending.Save(ctx, pendingID, &stores.PendingTwoFactor{
			UserID:     user.ID,
			CreatedAt:  now.Unix(),
			ExpiresAt:  now.Add(deps.PendingTTL).Unix(),
			RememberMe: in.RememberMe,
		}, deps.PendingTTL); err != nil {
			return SignInResult{State: SignInRejected}, deps.Errors.BackendUnavailable
		}
		h.MetricInc(h.Metrics.TwoFactorRequired)
		return SignInResult{State: SignInPendingTwoFactor, UserID: user.ID, PendingID: pendingID}, nil
	}

	issued, err := issueSession(ctx, deps.Issue, now, issueRequest{
		user:       user,
		ip:         in.IP,
		userAgent:  in.UserAgent,
		rememberMe: in.RememberMe,
	})
	if err != nil {
		h.Warn("sign-in: session issue failed", "user_id", user.ID, "error", err)
		return SignInResult{State: SignInRejected}, deps.Errors.BackendUnavailable
	}

	h.MetricInc(h.Metrics.SignInSuccess)
	h.MetricInc(h.Metrics.SessionCreated)
	h.Emit(ctx, Event{
		Name:      EventUserSignedIn,
		UserID:    user.ID,
		SessionID: issued.SessionID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Fields:    map[string]string{"twoFactorUsed": "false"},
	})

	return SignInResult{State: SignInTokensIssued, UserID: user.ID, Issued: issued}, nil
}

func rejectCredentials(ctx context.Context, deps SignInDeps, in SignInInput, email string) (SignInResult, error) {
	h := deps.Hooks
	h.MetricInc(h.Metrics.SignInFailure)
	emitSignInFailed(ctx, h, in, email, ReasonInvalidCredentials)

	if deps.Lockout == nil {
		return SignInResult{State: SignInRejected}, deps.Errors.InvalidCredentials
	}
	count, locked, err := deps.Lockout.RecordFailure(ctx, email)
	if err != nil {
		h.Warn("sign-in: lockout counter failed", "error", err)
		return SignInResult{State: SignInRejected}, deps.Errors.InvalidCredentials
	}
	if locked {
		h.Emit(ctx, Event{
			Name:      EventAccountLockedOut,
			IP:        in.IP,
			UserAgent: in.UserAgent,
			Fields: map[string]string{
				"email":                  email,
				"failedAttempts":         strconv.Itoa(count),
				"lockoutDurationSeconds": strconv.FormatInt(int64(deps.Lockout.Duration()/time.Second), 10),
			},
		})
	}
	return SignInResult{State: SignInRejected}, deps.Errors.InvalidCredentials
}

func emitSignInFailed(ctx context.Context, h Hooks, in SignInInput, email, reason string) {
	h.Emit(ctx, Event{
		Name:      EventSignInFailed,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Fields:    map[string]string{"email": email, "reason": reason},
	})
}

// upgradePasswordHash re-hashes with current parameters. Failures only log.
func upgradePasswordHash(ctx context.Context, deps SignInDeps, user UserRecord, plain string) {
	if deps.NeedsUpgrade == nil || deps.HashPassword == nil {
		return
	}
	upgrade, err := deps.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := deps.HashPassword(plain)
	if err != nil {
		deps.Hooks.Warn("sign-in: password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := deps.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		deps.Hooks.Warn("sign-in: password hash upgrade not stored", "user_id", user.ID, "error", err)
	}
}
