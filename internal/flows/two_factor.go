package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/stores"
	"github.com/redis/go-redis/v9"
)

// TOTP generates and checks time-based one-time codes.
type TOTP interface {
	GenerateSecret() ([]byte, string, error)
	ProvisionURI(secretBase32, account string) string
	VerifyCode(secret []byte, code string, now time.Time) (bool, int64, error)
	Digits() int
}

// CodeLimiter throttles code checks made outside a pending sign-in.
type CodeLimiter interface {
	Check(ctx context.Context, userID string) error
	RecordFailure(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

type TwoFactorDeps struct {
	Users    Users
	Sessions SessionStore
	Refresh  RefreshStore
	Pending  PendingStore
	Limiter  CodeLimiter
	TOTP     TOTP
	Issue    IssueDeps

	MaxAttempts        int
	RecoveryCodeCount  int
	RecoveryCodeLength int
	RandomIndex        func(int) (int, error)
	IsRateLimited      func(error) bool

	Hooks  Hooks
	Errors Errors
}

type CompleteTwoFactorInput struct {
	PendingID string
	Code      string
	IP        string
	UserAgent string
}

type CompleteTwoFactorResult struct {
	UserID string
	Method string
	Issued *Issued
}

// TwoFactorSetup is the provisioning payload shown to the user once.
type TwoFactorSetup struct {
	URI    string
	Secret string
}

func (d *TwoFactorDeps) ready() bool {
	d.Hooks.normalize()
	if d.IsRateLimited == nil {
		d.IsRateLimited = func(error) bool { return false }
	}
	return d.Users != nil && d.TOTP != nil
}

// RunSetupTwoFactor stores a new, not yet enabled secret for the user.
func RunSetupTwoFactor(ctx context.Context, email string, deps TwoFactorDeps) (TwoFactorSetup, error) {
	if !deps.ready() {
		return TwoFactorSetup{}, deps.Errors.EngineNotReady
	}
	user, err := userByEmail(ctx, deps.Users, email, deps.Errors)
	if err != nil {
		return TwoFactorSetup{}, err
	}
	if user.TwoFactorEnabled {
		return TwoFactorSetup{}, deps.Errors.TwoFactorAlreadyEnabled
	}

	raw, encoded, err := deps.TOTP.GenerateSecret()
	if err != nil {
		return TwoFactorSetup{}, err
	}
	if err := deps.Users.SetTwoFactorSecret(ctx, user.ID, raw); err != nil {
		return TwoFactorSetup{}, deps.Errors.BackendUnavailable
	}

	return TwoFactorSetup{
		URI:    deps.TOTP.ProvisionURI(encoded, user.Email),
		Secret: encoded,
	}, nil
}

// RunConfirmTwoFactor enables two-factor after the first valid code and
// returns the recovery codes. Every other session of the user is revoked.
func RunConfirmTwoFactor(ctx context.Context, email, code, currentSessionID string, deps TwoFactorDeps) ([]string, error) {
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	user, err := userByEmail(ctx, deps.Users, email, deps.Errors)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, deps.Errors.TwoFactorAlreadyEnabled
	}
	if len(user.TwoFactorSecret) == 0 {
		return nil, deps.Errors.TwoFactorNotConfigured
	}
	if err := checkLimiter(ctx, deps, user.ID); err != nil {
		return nil, err
	}

	ok, err := verifyTOTP(ctx, deps, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, recordLimiterFailure(ctx, deps, user.ID)
	}

	codes, hashes, err := NewRecoveryCodes(user.ID, deps.RecoveryCodeCount, deps.RecoveryCodeLength, deps.RandomIndex)
	if err != nil {
		return nil, err
	}
	if err := deps.Users.EnableTwoFactor(ctx, user.ID, hashes); err != nil {
		return nil, deps.Errors.BackendUnavailable
	}
	resetLimiter(ctx, deps, user.ID)

	deps.Hooks.Emit(ctx, Event{
		Name:      EventTwoFactorEnabled,
		UserID:    user.ID,
		SessionID: currentSessionID,
		Fields:    map[string]string{"email": user.Email},
	})

	if deps.Sessions != nil && deps.Refresh != nil {
		sd := SessionDeps{Sessions: deps.Sessions, Refresh: deps.Refresh, Hooks: deps.Hooks, Errors: deps.Errors}
		if _, err := revokeUserSessions(ctx, sd, user.ID, currentSessionID, ReasonTwoFactorEnabled); err != nil {
			deps.Hooks.Warn("two-factor: revoking other sessions failed", "user_id", user.ID, "error", err)
		}
	}

	return codes, nil
}

// RunCompleteTwoFactor consumes a pending two-factor session with a TOTP or
// recovery code and issues tokens.
func RunCompleteTwoFactor(ctx context.Context, in CompleteTwoFactorInput, deps TwoFactorDeps) (CompleteTwoFactorResult, error) {
	if !deps.ready() || deps.Pending == nil {
		return CompleteTwoFactorResult{}, deps.Errors.EngineNotReady
	}
	h := deps.Hooks
	now := h.Now()

	pending, err := deps.Pending.Get(ctx, in.PendingID, now)
	if err != nil {
		if errors.Is(err, stores.ErrPendingTwoFactorNotFound) || errors.Is(err, stores.ErrPendingTwoFactorExpired) {
			return CompleteTwoFactorResult{}, rejectPending(ctx, deps, in, ReasonExpired)
		}
		return CompleteTwoFactorResult{}, deps.Errors.BackendUnavailable
	}

	user, err := deps.Users.ByID(ctx, pending.UserID)
	if err != nil {
		if !errors.Is(err, ErrNoUser) {
			return CompleteTwoFactorResult{}, deps.Errors.BackendUnavailable
		}
		_, _ = deps.Pending.Delete(ctx, in.PendingID)
		return CompleteTwoFactorResult{}, rejectPending(ctx, deps, in, ReasonExpired)
	}

	method, ok, err := matchSecondFactor(ctx, deps, user, in.Code)
	if err != nil {
		return CompleteTwoFactorResult{}, err
	}
	if !ok {
		h.MetricInc(h.Metrics.TwoFactorFailure)
		_, exceeded, err := deps.Pending.RecordFailure(ctx, in.PendingID, deps.MaxAttempts, now)
		switch {
		case errors.Is(err, stores.ErrPendingTwoFactorNotFound), errors.Is(err, stores.ErrPendingTwoFactorExpired):
			return CompleteTwoFactorResult{}, rejectPending(ctx, deps, in, ReasonExpired)
		case err != nil:
			return CompleteTwoFactorResult{}, deps.Errors.BackendUnavailable
		case exceeded:
			return CompleteTwoFactorResult{}, rejectPending(ctx, deps, in, ReasonAttemptsExceeded)
		}
		emitTwoFactorFailed(ctx, h, in, ReasonInvalidCode)
		return CompleteTwoFactorResult{}, deps.Errors.TwoFactorInvalidCode
	}

	deleted, err := deps.Pending.Delete(ctx, in.PendingID)
	if err != nil {
		return CompleteTwoFactorResult{}, deps.Errors.BackendUnavailable
	}
	if !deleted {
		return CompleteTwoFactorResult{}, rejectPending(ctx, deps, in, ReasonReplay)
	}

	// The pending session is claimed; only now is a recovery code spent.
	var remaining int
	if method == MethodRecoveryCode {
		var consumed bool
		remaining, consumed, err = consumeRecoveryCode(ctx, deps, user, in.Code)
		if err != nil {
			return CompleteTwoFactorResult{}, err
		}
		if !consumed {
			return CompleteTwoFactorResult{}, rejectPending(ctx, deps, in, ReasonReplay)
		}
	}

	issued, err := issueSession(ctx, deps.Issue, now, issueRequest{
		user:          user,
		ip:            in.IP,
		userAgent:     in.UserAgent,
		rememberMe:    pending.RememberMe,
		twoFactorUsed: true,
	})
	if err != nil {
		h.Warn("two-factor: session issue failed", "user_id", user.ID, "error", err)
		return CompleteTwoFactorResult{}, deps.Errors.BackendUnavailable
	}

	h.MetricInc(h.Metrics.TwoFactorSuccess)
	h.MetricInc(h.Metrics.SessionCreated)
	if method == MethodRecoveryCode {
		h.MetricInc(h.Metrics.RecoveryCodeUsed)
		h.Emit(ctx, Event{
			Name:      EventRecoveryCodeUsed,
			UserID:    user.ID,
			SessionID: issued.SessionID,
			IP:        in.IP,
			Fields:    map[string]string{"remainingCodes": strconv.Itoa(remaining)},
		})
	}
	h.Emit(ctx, Event{
		Name:      EventTwoFactorCompleted,
		UserID:    user.ID,
		SessionID: issued.SessionID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Fields:    map[string]string{"method": method},
	})
	h.Emit(ctx, Event{
		Name:      EventUserSignedIn,
		UserID:    user.ID,
		SessionID: issued.SessionID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Fields:    map[string]string{"twoFactorUsed": "true"},
	})

	return CompleteTwoFactorResult{UserID: user.ID, Method: method, Issued: issued}, nil
}

// RunDisableTwoFactor turns two-factor off after a valid TOTP or recovery
// code.
func RunDisableTwoFactor(ctx context.Context, email, code string, deps TwoFactorDeps) error {
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}
	user, err := userByEmail(ctx, deps.Users, email, deps.Errors)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return deps.Errors.TwoFactorNotEnabled
	}
	if err := checkLimiter(ctx, deps, user.ID); err != nil {
		return err
	}

	_, _, ok, err := verifySecondFactor(ctx, deps, user, code)
	if err != nil {
		return err
	}
	if !ok {
		return recordLimiterFailure(ctx, deps, user.ID)
	}

	if err := deps.Users.DisableTwoFactor(ctx, user.ID); err != nil {
		return deps.Errors.BackendUnavailable
	}
	resetLimiter(ctx, deps, user.ID)

	deps.Hooks.Emit(ctx, Event{
		Name:   EventTwoFactorDisabled,
		UserID: user.ID,
		Fields: map[string]string{"email": user.Email},
	})
	return nil
}

// RunRegenerateRecoveryCodes replaces every recovery code. The caller must
// hold an active session of the same user.
func RunRegenerateRecoveryCodes(ctx context.Context, email, currentSessionID string, deps TwoFactorDeps) ([]string, error) {
	if !deps.ready() || deps.Sessions == nil {
		return nil, deps.Errors.EngineNotReady
	}
	user, err := userByEmail(ctx, deps.Users, email, deps.Errors)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, deps.Errors.TwoFactorNotEnabled
	}

	now := deps.Hooks.Now()
	sess, err := deps.Sessions.Get(ctx, currentSessionID, now)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, deps.Errors.SessionNotFound
		}
		return nil, deps.Errors.BackendUnavailable
	}
	if sess.UserID != user.ID || !sess.Active(now.Unix()) {
		return nil, deps.Errors.SessionNotFound
	}

	codes, hashes, err := NewRecoveryCodes(user.ID, deps.RecoveryCodeCount, deps.RecoveryCodeLength, deps.RandomIndex)
	if err != nil {
		return nil, err
	}
	if err := deps.Users.ReplaceRecoveryCodes(ctx, user.ID, hashes); err != nil {
		return nil, deps.Errors.BackendUnavailable
	}

	deps.Hooks.Emit(ctx, Event{
		Name:      EventRecoveryCodesRegenerated,
		UserID:    user.ID,
		SessionID: currentSessionID,
		Fields:    map[string]string{"count": strconv.Itoa(len(codes))},
	})
	return codes, nil
}

// verifySecondFactor treats an all-digit code of TOTP length as a TOTP and
// anything else as a recovery code, which it consumes on a match.
func verifySecondFactor(ctx context.Context, deps TwoFactorDeps, user UserRecord, code string) (method string, remaining int, ok bool, err error) {
	trimmed := strings.TrimSpace(code)
	if isTOTPCode(deps, trimmed) {
		ok, err := verifyTOTP(ctx, deps, user, trimmed)
		return MethodTOTP, 0, ok, err
	}
	remaining, ok, err = consumeRecoveryCode(ctx, deps, user, trimmed)
	return MethodRecoveryCode, remaining, ok, err
}

// matchSecondFactor is verifySecondFactor without spending a recovery code.
// A matching TOTP still burns its time step.
func matchSecondFactor(ctx context.Context, deps TwoFactorDeps, user UserRecord, code string) (method string, ok bool, err error) {
	trimmed := strings.TrimSpace(code)
	if isTOTPCode(deps, trimmed) {
		ok, err := verifyTOTP(ctx, deps, user, trimmed)
		return MethodTOTP, ok, err
	}
	canonical := CanonicalRecoveryCode(trimmed)
	if canonical == "" {
		return MethodRecoveryCode, false, nil
	}
	ok, err = deps.Users.HasRecoveryCode(ctx, user.ID, RecoveryCodeHash(user.ID, canonical))
	if err != nil {
		return MethodRecoveryCode, false, deps.Errors.BackendUnavailable
	}
	return MethodRecoveryCode, ok, nil
}

func consumeRecoveryCode(ctx context.Context, deps TwoFactorDeps, user UserRecord, code string) (remaining int, ok bool, err error) {
	canonical := CanonicalRecoveryCode(strings.TrimSpace(code))
	if canonical == "" {
		return 0, false, nil
	}
	remaining, ok, err = deps.Users.ConsumeRecoveryCode(ctx, user.ID, RecoveryCodeHash(user.ID, canonical))
	if err != nil {
		return 0, false, deps.Errors.BackendUnavailable
	}
	return remaining, ok, nil
}

func isTOTPCode(deps TwoFactorDeps, code string) bool {
	return len(code) == deps.TOTP.Digits() && isDigits(code)
}

// verifyTOTP checks code against the user's secret and burns the matched
// time step so the same code cannot be replayed.
func verifyTOTP(ctx context.Context, deps TwoFactorDeps, user UserRecord, code string) (bool, error) {
	if len(user.TwoFactorSecret) == 0 {
		return false, nil
	}
	ok, step, err := deps.TOTP.VerifyCode(user.TwoFactorSecret, code, deps.Hooks.Now())
	if err != nil || !ok {
		return false, nil
	}
	fresh, err := deps.Users.MarkTwoFactorStep(ctx, user.ID, step)
	if err != nil {
		return false, deps.Errors.BackendUnavailable
	}
	return fresh, nil
}

func rejectPending(ctx context.Context, deps TwoFactorDeps, in CompleteTwoFactorInput, reason string) error {
	deps.Hooks.MetricInc(deps.Hooks.Metrics.TwoFactorRejected)
	emitTwoFactorFailed(ctx, deps.Hooks, in, reason)
	return deps.Errors.TwoFactorRejected
}

func emitTwoFactorFailed(ctx context.Context, h Hooks, in CompleteTwoFactorInput, reason string) {
	h.Emit(ctx, Event{
		Name:      EventTwoFactorFailed,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Fields:    map[string]string{"pendingSessionId": in.PendingID, "reason": reason},
	})
}

func checkLimiter(ctx context.Context, deps TwoFactorDeps, userID string) error {
	if deps.Limiter == nil {
		return nil
	}
	if err := deps.Limiter.Check(ctx, userID); err != nil {
		if deps.IsRateLimited(err) {
			return deps.Errors.TwoFactorRateLimited
		}
		return deps.Errors.BackendUnavailable
	}
	return nil
}

func recordLimiterFailure(ctx context.Context, deps TwoFactorDeps, userID string) error {
	if deps.Limiter != nil {
		if err := deps.Limiter.RecordFailure(ctx, userID); err != nil && !deps.IsRateLimited(err) {
			deps.Hooks.Warn("two-factor: limiter update failed", "user_id", userID, "error", err)
		}
	}
	return deps.Errors.TwoFactorInvalidCode
}

func resetLimiter(ctx context.Context, deps TwoFactorDeps, userID string) {
	if deps.Limiter == nil {
		return
	}
	if err := deps.Limiter.Reset(ctx, userID); err != nil {
		deps.Hooks.Warn("two-factor: limiter reset failed", "user_id", userID, "error", err)
	}
}

func userByEmail(ctx context.Context, users Users, email string, errs Errors) (UserRecord, error) {
	user, err := users.ByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			return UserRecord{}, errs.UserByEmailNotFound
		}
		return UserRecord{}, errs.BackendUnavailable
	}
	return user, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
