package userauth

import (
	"context"
	"time"
)

/*
====================================
COMMANDS
====================================
*/

// SignIn checks email and password. IP and UserAgent fall back to the values
// attached with [WithClientIP] and [WithUserAgent].
type SignIn struct {
	Email      string
	Password   string
	RememberMe bool
	IP         string
	UserAgent  string
}

// CompleteTwoFactor finishes a sign-in that returned a pending session. Code
// is either a TOTP code or an unused recovery code.
type CompleteTwoFactor struct {
	PendingSessionID string
	Code             string
	IP               string
	UserAgent        string
}

type SetupTwoFactor struct {
	UserEmail string
}

type ConfirmTwoFactor struct {
	UserEmail        string
	Code             string
	CurrentSessionID string
}

type DisableTwoFactor struct {
	UserEmail string
	Code      string
}

type RegenerateRecoveryCodes struct {
	UserEmail        string
	CurrentSessionID string
}

type RefreshToken struct {
	RefreshToken string
	IP           string
}

type SignOut struct {
	SessionID string
	UserID    string
}

type SignOutAll struct {
	UserID string
}

type RequestPasswordReset struct {
	Email string
	IP    string
}

type ConfirmPasswordReset struct {
	Token       string
	NewPassword string
	UserID      string
}

// ChangePassword replaces the password of a signed-in user. Every session
// except CurrentSessionID is revoked.
type ChangePassword struct {
	UserID           string
	OldPassword      string
	NewPassword      string
	CurrentSessionID string
}

/*
====================================
RESULTS
====================================
*/

// SignInResult carries tokens when TwoFactorEnabled is false and a pending
// session id when it is true. Never both.
type SignInResult struct {
	TwoFactorEnabled bool
	PendingSessionID string

	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresAt    time.Time
}

// TokenPair is returned by two-factor completion and refresh. ExpiresAt is
// the absolute expiry of the refresh chain.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresAt    time.Time
}

type TwoFactorSetup struct {
	OTPAuthURI string
	Secret     string
}

// RecoveryCodes are shown to the user once. Only their hashes are stored.
type RecoveryCodes struct {
	Codes []string
}

// MessageResult is a translated, user-facing confirmation.
type MessageResult struct {
	Message string
}

// SessionInfo describes one active session of a user.
type SessionInfo struct {
	SessionID     string
	IP            string
	UserAgent     string
	TwoFactorUsed bool
	RememberMe    bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

/*
====================================
IDENTITY
====================================
*/

// Identity is the resolved caller of an authenticated request. It is either
// a [ServicePrincipal] or a [DomainUser]; use a type switch.
type Identity interface {
	identity()
}

// ServicePrincipal is a machine caller. It is recognised by the service role
// in its token and never looked up in the user store.
type ServicePrincipal struct {
	Subject   string
	SessionID string
	Roles     []string
}

// DomainUser is an end user resolved from the user store.
type DomainUser struct {
	User      User
	SessionID string
	Roles     []string
}

func (ServicePrincipal) identity() {}
func (DomainUser) identity()       {}

/*
====================================
USER STORE
====================================
*/

// User is the account record the Engine reads from the [UserProvider].
type User struct {
	ID           string
	Email        string
	Initials     string
	PasswordHash string
	Roles        []string

	TwoFactorEnabled bool
	// TwoFactorSecret holds the raw TOTP key, set at setup time and kept
	// until 2FA is disabled.
	TwoFactorSecret []byte
}

// UserProvider is the account store. Lookups report a missing account with
// [ErrUserNotFound] (by id) or [ErrUserByEmailNotFound] (by email); any
// other error is treated as a backend failure.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	SetTwoFactorSecret(ctx context.Context, userID string, secret []byte) error
	EnableTwoFactor(ctx context.Context, userID string, recoveryCodeHashes [][32]byte) error
	DisableTwoFactor(ctx context.Context, userID string) error
	// MarkTwoFactorStep records a used TOTP time step. It reports false when
	// the step, or a later one, was already recorded.
	MarkTwoFactorStep(ctx context.Context, userID string, step int64) (bool, error)

	ReplaceRecoveryCodes(ctx context.Context, userID string, hashes [][32]byte) error
	// HasRecoveryCode reports whether an unused code with the given hash
	// exists, without consuming it.
	HasRecoveryCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
	// ConsumeRecoveryCode deletes the code with the given hash and reports
	// how many codes remain.
	ConsumeRecoveryCode(ctx context.Context, userID string, hash [32]byte) (remaining int, ok bool, err error)
}
