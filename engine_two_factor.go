package userauth

import (
	"context"
	"errors"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/limiters"
)

func (e *Engine) twoFactorDeps() flows.TwoFactorDeps {
	return flows.TwoFactorDeps{
		Users:              e.users,
		Sessions:           e.sessions,
		Refresh:            e.refresh,
		Pending:            e.pending,
		Limiter:            e.twoFactorLimiter,
		TOTP:               e.totp,
		Issue:              e.issueDeps(),
		MaxAttempts:        e.config.TwoFactor.MaxAttempts,
		RecoveryCodeCount:  e.config.TwoFactor.RecoveryCodeCount,
		RecoveryCodeLength: e.config.TwoFactor.RecoveryCodeLength,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, limiters.ErrTwoFactorRateLimited)
		},
		Hooks:  e.hooks(),
		Errors: flowErrors(),
	}
}

// SetupTwoFactor generates a TOTP secret for the user and stores it as not
// yet enabled. The returned URI is meant for a QR code.
func (e *Engine) SetupTwoFactor(ctx context.Context, cmd SetupTwoFactor) (*TwoFactorSetup, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	setup, err := flows.RunSetupTwoFactor(ctx, cmd.UserEmail, e.twoFactorDeps())
	if err != nil {
		return nil, err
	}
	return &TwoFactorSetup{OTPAuthURI: setup.URI, Secret: setup.Secret}, nil
}

// ConfirmTwoFactor enables two-factor with the first valid TOTP code and
// returns the recovery codes. They are not retrievable later. Every other
// session of the user is revoked.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, cmd ConfirmTwoFactor) (*RecoveryCodes, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	codes, err := flows.RunConfirmTwoFactor(ctx, cmd.UserEmail, cmd.Code, cmd.CurrentSessionID, e.twoFactorDeps())
	if err != nil {
		return nil, err
	}
	return &RecoveryCodes{Codes: codes}, nil
}

// CompleteTwoFactor finishes a pending sign-in.
//
// A wrong code returns [ErrTwoFactorInvalidCode] until the attempt ceiling
// is reached; from then on, and for unknown or expired pending sessions,
// [ErrTwoFactorRejected] is returned and the client must sign in again.
func (e *Engine) CompleteTwoFactor(ctx context.Context, cmd CompleteTwoFactor) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := flows.RunCompleteTwoFactor(ctx, flows.CompleteTwoFactorInput{
		PendingID: cmd.PendingSessionID,
		Code:      cmd.Code,
		IP:        firstNonEmpty(cmd.IP, clientIPFromContext(ctx)),
		UserAgent: firstNonEmpty(cmd.UserAgent, userAgentFromContext(ctx)),
	}, e.twoFactorDeps())
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  res.Issued.AccessToken,
		RefreshToken: res.Issued.RefreshToken,
		SessionID:    res.Issued.SessionID,
		ExpiresAt:    unixTime(res.Issued.ExpiresAt),
	}, nil
}

// DisableTwoFactor requires a valid TOTP or recovery code.
func (e *Engine) DisableTwoFactor(ctx context.Context, cmd DisableTwoFactor) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunDisableTwoFactor(ctx, cmd.UserEmail, cmd.Code, e.twoFactorDeps())
}

// RegenerateRecoveryCodes replaces every recovery code of the user. The
// current session must be active and belong to the same user.
func (e *Engine) RegenerateRecoveryCodes(ctx context.Context, cmd RegenerateRecoveryCodes) (*RecoveryCodes, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	codes, err := flows.RunRegenerateRecoveryCodes(ctx, cmd.UserEmail, cmd.CurrentSessionID, e.twoFactorDeps())
	if err != nil {
		return nil, err
	}
	return &RecoveryCodes{Codes: codes}, nil
}
