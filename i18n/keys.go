package i18n

// Message keys. Keys double as the catalog lookup string.
const (
	KeyResetRequested   = "password_reset.requested"
	KeyResetConfirmed   = "password_reset.confirmed"
	KeyResetMailSubject = "password_reset.mail.subject"
	// KeyResetMailBody takes the token and its lifetime in minutes.
	KeyResetMailBody = "password_reset.mail.body"

	KeyAuthenticationRequired = "error.authentication_required"
	KeyInvalidCredentials     = "error.invalid_credentials"
	KeyAccountLocked          = "error.account_locked"
	KeyInvalidClaims          = "error.invalid_claims"
	KeyTheftDetected          = "error.refresh_token_theft"
	KeySessionNotFound        = "error.session_not_found"

	KeyTwoFactorInvalidCode    = "error.two_factor.invalid_code"
	KeyTwoFactorRejected       = "error.two_factor.rejected"
	KeyTwoFactorNotEnabled     = "error.two_factor.not_enabled"
	KeyTwoFactorAlreadyEnabled = "error.two_factor.already_enabled"
	KeyTwoFactorNotConfigured  = "error.two_factor.not_configured"
	KeyTwoFactorRateLimited    = "error.two_factor.rate_limited"

	KeyTokenNotFound    = "error.reset_token.not_found"
	KeyTokenMismatch    = "error.reset_token.mismatch"
	KeyTokenAlreadyUsed = "error.reset_token.already_used"
	KeyTokenExpired     = "error.reset_token.expired"

	KeyRateLimitExceeded = "error.rate_limit_exceeded"
	KeyInvalidPassword   = "error.invalid_password"
	KeyPasswordPolicy    = "error.password_policy"
	KeyUserNotFound      = "error.user_not_found"
	KeyUnavailable       = "error.unavailable"
)
