package userauth

import (
	"context"
	"errors"

	"github.com/VilnaCRM-Org/user-service-sub004/i18n"
)

var errorKeys = []struct {
	err error
	key string
}{
	{ErrAuthenticationRequired, i18n.KeyAuthenticationRequired},
	{ErrInvalidToken, i18n.KeyAuthenticationRequired},
	{ErrInvalidClaims, i18n.KeyInvalidClaims},
	{ErrInvalidCredentials, i18n.KeyInvalidCredentials},
	{ErrAccountLocked, i18n.KeyAccountLocked},
	{ErrSessionNotFound, i18n.KeySessionNotFound},
	{ErrTheftDetected, i18n.KeyTheftDetected},

	{ErrTwoFactorInvalidCode, i18n.KeyTwoFactorInvalidCode},
	{ErrTwoFactorRejected, i18n.KeyTwoFactorRejected},
	{ErrTwoFactorNotEnabled, i18n.KeyTwoFactorNotEnabled},
	{ErrTwoFactorAlreadyEnabled, i18n.KeyTwoFactorAlreadyEnabled},
	{ErrTwoFactorNotConfigured, i18n.KeyTwoFactorNotConfigured},
	{ErrTwoFactorRateLimited, i18n.KeyTwoFactorRateLimited},

	{ErrTokenNotFound, i18n.KeyTokenNotFound},
	{ErrTokenMismatch, i18n.KeyTokenMismatch},
	{ErrTokenAlreadyUsed, i18n.KeyTokenAlreadyUsed},
	{ErrTokenExpired, i18n.KeyTokenExpired},
	{ErrRateLimitExceeded, i18n.KeyRateLimitExceeded},
	{ErrInvalidPassword, i18n.KeyInvalidPassword},
	{ErrPasswordPolicy, i18n.KeyPasswordPolicy},

	{ErrUserNotFound, i18n.KeyUserNotFound},
	{ErrUserByEmailNotFound, i18n.KeyUserNotFound},
}

// MessageKey returns the catalog key for err. Unknown errors map to the
// generic unavailable message.
func MessageKey(err error) string {
	for _, ek := range errorKeys {
		if errors.Is(err, ek.err) {
			return ek.key
		}
	}
	return i18n.KeyUnavailable
}

// Message translates err for the locale attached with [WithLocale]. It
// returns "" for a nil error.
func (e *Engine) Message(ctx context.Context, err error) string {
	if err == nil {
		return ""
	}
	return e.translate(ctx, MessageKey(err))
}
