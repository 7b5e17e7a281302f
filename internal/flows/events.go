package flows

// Event names. Field keys are listed next to each name.
const (
	EventUserSignedIn              = "UserSignedIn"              // twoFactorUsed
	EventSignInFailed              = "SignInFailed"              // email, reason
	EventTwoFactorCompleted        = "TwoFactorCompleted"        // method
	EventTwoFactorFailed           = "TwoFactorFailed"           // pendingSessionId, reason
	EventTwoFactorEnabled          = "TwoFactorEnabled"          // email
	EventTwoFactorDisabled         = "TwoFactorDisabled"         // email
	EventRecoveryCodeUsed          = "RecoveryCodeUsed"          // remainingCodes
	EventRecoveryCodesRegenerated  = "RecoveryCodesRegenerated"  // count
	EventAccountLockedOut          = "AccountLockedOut"          // email, failedAttempts, lockoutDurationSeconds
	EventRefreshTokenRotated       = "RefreshTokenRotated"       // oldTokenRevoked
	EventRefreshTokenTheftDetected = "RefreshTokenTheftDetected" // reason
	EventSessionRevoked            = "SessionRevoked"            // reason
	EventAllSessionsRevoked        = "AllSessionsRevoked"        // reason, revokedCount
	EventPasswordResetRequested    = "PasswordResetRequested"    // email, token
	EventPasswordResetConfirmed    = "PasswordResetConfirmed"
	EventPasswordChanged           = "PasswordChanged"
)

// Reason tags carried in event fields.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountLocked      = "account_locked"
	ReasonInvalidCode        = "invalid_code"
	ReasonAttemptsExceeded   = "attempts_exceeded"
	ReasonExpired            = "expired"
	ReasonReplay             = "replay"
	ReasonDoubleGraceUse     = "double_grace_use"
	ReasonRevokedTokenReuse  = "revoked_token_reuse"
	ReasonLogout             = "logout"
	ReasonUserInitiated      = "user_initiated"
	ReasonTwoFactorEnabled   = "two_factor_enabled"
	ReasonPasswordReset      = "password_reset"
	ReasonPasswordChanged    = "password_changed"
	ReasonTheft              = "refresh_token_theft"
)

// Second-factor methods.
const (
	MethodTOTP         = "totp"
	MethodRecoveryCode = "recovery_code"
)
