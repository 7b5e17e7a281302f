package userauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/i18n"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/limiters"
	"github.com/VilnaCRM-Org/user-service-sub004/mail"
)

func (e *Engine) passwordResetDeps() flows.PasswordResetDeps {
	return flows.PasswordResetDeps{
		Users:          e.users,
		Limiter:        e.resetLimiter,
		Store:          e.resets,
		Sessions:       e.sessions,
		Refresh:        e.refresh,
		TokenTTL:       e.config.PasswordReset.TokenTTL,
		NewToken:       e.newResetToken,
		SendResetEmail: e.sendResetEmail,
		CheckPolicy:    e.config.PasswordPolicy.Check,
		HashPassword:   e.hasher.Hash,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, limiters.ErrResetRateLimited)
		},
		Hooks:  e.hooks(),
		Errors: flowErrors(),
	}
}

// RequestPasswordReset sends a reset code to the account's email. The
// confirmation message is the same whether or not the email exists.
// [ErrRateLimitExceeded] is returned once the email or IP exceeds its
// sliding-window budget.
func (e *Engine) RequestPasswordReset(ctx context.Context, cmd RequestPasswordReset) (*MessageResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ip := firstNonEmpty(cmd.IP, clientIPFromContext(ctx))
	if err := flows.RunRequestPasswordReset(ctx, cmd.Email, ip, e.passwordResetDeps()); err != nil {
		return nil, err
	}
	return &MessageResult{Message: e.translate(ctx, i18n.KeyResetRequested)}, nil
}

// ConfirmPasswordReset consumes the token and sets the new password. All
// sessions of the user are revoked.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, cmd ConfirmPasswordReset) (*MessageResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if err := flows.RunConfirmPasswordReset(ctx, cmd.Token, cmd.NewPassword, cmd.UserID, e.passwordResetDeps()); err != nil {
		return nil, err
	}
	return &MessageResult{Message: e.translate(ctx, i18n.KeyResetConfirmed)}, nil
}

func (e *Engine) newResetToken() (string, error) {
	buf := make([]byte, e.config.PasswordReset.TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (e *Engine) sendResetEmail(ctx context.Context, user flows.UserRecord, token string, expiresAt time.Time) error {
	minutes := int(expiresAt.Sub(e.now()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return e.mailer.Send(ctx, mail.Message{
		To:      user.Email,
		Subject: e.translate(ctx, i18n.KeyResetMailSubject),
		Body:    e.translate(ctx, i18n.KeyResetMailBody, token, minutes),
	})
}
