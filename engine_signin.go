package userauth

import (
	"context"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
)

// SignIn checks credentials. When the account has two-factor enabled the
// result carries only a pending session id for [Engine.CompleteTwoFactor];
// otherwise it carries a fresh token pair.
//
// Unknown emails and wrong passwords both return [ErrInvalidCredentials].
// [ErrAccountLocked] is returned while the email is locked out.
func (e *Engine) SignIn(ctx context.Context, cmd SignIn) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	deps := flows.SignInDeps{
		Users:          e.users,
		Pending:        e.pending,
		Issue:          e.issueDeps(),
		VerifyPassword: e.hasher.Verify,
		DummyHash:      e.dummyHash,
		PendingTTL:     e.config.TwoFactor.PendingTTL,
		Hooks:          e.hooks(),
		Errors:         flowErrors(),
	}
	if e.config.SignIn.LockoutEnabled {
		deps.Lockout = e.lockout
	}
	if e.config.SignIn.UpgradeHashOnSignIn {
		deps.NeedsUpgrade = e.hasher.NeedsUpgrade
		deps.HashPassword = e.hasher.Hash
	}

	res, err := flows.RunSignIn(ctx, flows.SignInInput{
		Email:      cmd.Email,
		Password:   cmd.Password,
		RememberMe: cmd.RememberMe,
		IP:         firstNonEmpty(cmd.IP, clientIPFromContext(ctx)),
		UserAgent:  firstNonEmpty(cmd.UserAgent, userAgentFromContext(ctx)),
	}, deps)
	if err != nil {
		return nil, err
	}

	switch res.State {
	case flows.SignInPendingTwoFactor:
		return &SignInResult{
			TwoFactorEnabled: true,
			PendingSessionID: res.PendingID,
		}, nil
	case flows.SignInTokensIssued:
		return &SignInResult{
			AccessToken:  res.Issued.AccessToken,
			RefreshToken: res.Issued.RefreshToken,
			SessionID:    res.Issued.SessionID,
			ExpiresAt:    unixTime(res.Issued.ExpiresAt),
		}, nil
	default:
		return nil, ErrInvalidCredentials
	}
}
