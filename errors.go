package userauth

import "errors"

// Bearer token and identity failures. Authenticate only ever returns
// ErrAuthenticationRequired; the finer kinds reach logs, not callers.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidToken           = errors.New("invalid token")
	ErrInvalidClaims          = errors.New("invalid claims")
)

// Sign-in and session failures.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrSessionNotFound    = errors.New("session not found")
	// ErrTheftDetected is fatal to the refresh chain and its session; the
	// client must sign in again.
	ErrTheftDetected = errors.New("refresh token reuse detected")
)

// Two-factor failures.
var (
	ErrTwoFactorInvalidCode    = errors.New("invalid two-factor code")
	ErrTwoFactorRejected       = errors.New("two-factor session rejected")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication not enabled")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotConfigured  = errors.New("two-factor secret not configured")
	ErrTwoFactorRateLimited    = errors.New("two-factor attempts rate limited")
)

// Password reset and password change failures. The four token errors are
// reported in the order NotFound, Mismatch, AlreadyUsed, Expired.
var (
	ErrTokenNotFound     = errors.New("reset token not found")
	ErrTokenMismatch     = errors.New("reset token belongs to another user")
	ErrTokenAlreadyUsed  = errors.New("reset token already used")
	ErrTokenExpired      = errors.New("reset token expired")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrPasswordPolicy    = errors.New("password policy violation")
)

// Administrative lookups. Never returned from sign-in.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserByEmailNotFound = errors.New("user with this email not found")
)

var (
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	ErrEngineNotReady     = errors.New("engine not initialized")
)
