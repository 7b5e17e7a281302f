package userauth

import (
	"errors"
	"strings"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/jwt"
	"github.com/VilnaCRM-Org/user-service-sub004/password"
)

// Config is the complete Engine configuration. Start from [DefaultConfig] or
// [LoadConfigFromEnv]; every field carries an env tag relative to the AUTH_
// prefix.
type Config struct {
	JWT            JWTConfig           `envPrefix:"JWT_"`
	Session        SessionConfig       `envPrefix:"SESSION_"`
	Refresh        RefreshConfig       `envPrefix:"REFRESH_"`
	TwoFactor      TwoFactorConfig     `envPrefix:"TWO_FACTOR_"`
	SignIn         SignInConfig        `envPrefix:"SIGN_IN_"`
	PasswordReset  PasswordResetConfig `envPrefix:"PASSWORD_RESET_"`
	Password       password.Config     `envPrefix:"ARGON2_"`
	PasswordPolicy password.Policy     `envPrefix:"PASSWORD_POLICY_"`
	Events         EventsConfig        `envPrefix:"EVENTS_"`
	Metrics        MetricsConfig       `envPrefix:"METRICS_"`
	Cookie         CookieConfig        `envPrefix:"COOKIE_"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig describes access tokens. Key material is PEM; when only the
// *File fields are set, LoadConfigFromEnv reads them.
type JWTConfig struct {
	SigningMethod string        `env:"SIGNING_METHOD"`
	AccessTTL     time.Duration `env:"ACCESS_TTL"`
	Issuer        string        `env:"ISSUER"`
	Audience      string        `env:"AUDIENCE"`
	KeyID         string        `env:"KEY_ID"`

	// ServiceRole marks machine callers. Tokens carrying it resolve to a
	// ServicePrincipal without a user lookup.
	ServiceRole string `env:"SERVICE_ROLE"`
	// RequireActiveSession makes Authenticate reject tokens whose session
	// was revoked, at the cost of one Redis read.
	RequireActiveSession bool `env:"REQUIRE_ACTIVE_SESSION"`

	PrivateKey     []byte `env:"-"`
	PublicKey      []byte `env:"-"`
	PrivateKeyFile string `env:"PRIVATE_KEY_FILE"`
	PublicKeyFile  string `env:"PUBLIC_KEY_FILE"`
}

/*
====================================
SESSION AND REFRESH CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string `env:"REDIS_PREFIX"`
}

type RefreshConfig struct {
	TTL           time.Duration `env:"TTL"`
	RememberMeTTL time.Duration `env:"REMEMBER_ME_TTL"`
	RedisPrefix   string        `env:"REDIS_PREFIX"`
	// TreatRevokedAsTheft classifies redemption of a revoked token (for
	// example after sign-out) like reuse of a spent one.
	TreatRevokedAsTheft bool `env:"TREAT_REVOKED_AS_THEFT"`
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

type TwoFactorConfig struct {
	Issuer    string `env:"ISSUER"`
	Digits    int    `env:"DIGITS"`
	Period    int    `env:"PERIOD"`
	Skew      int    `env:"SKEW"`
	Algorithm string `env:"ALGORITHM"`

	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	PendingTTL  time.Duration `env:"PENDING_TTL"`
	RedisPrefix string        `env:"REDIS_PREFIX"`

	RecoveryCodeCount  int `env:"RECOVERY_CODE_COUNT"`
	RecoveryCodeLength int `env:"RECOVERY_CODE_LENGTH"`

	// Limiter bounds code checks made outside a pending sign-in (confirm,
	// disable).
	LimiterMaxAttempts int           `env:"LIMITER_MAX_ATTEMPTS"`
	LimiterCooldown    time.Duration `env:"LIMITER_COOLDOWN"`
}

/*
====================================
SIGN-IN CONFIG
====================================
*/

type SignInConfig struct {
	LockoutEnabled      bool          `env:"LOCKOUT_ENABLED"`
	LockoutThreshold    int           `env:"LOCKOUT_THRESHOLD"`
	LockoutDuration     time.Duration `env:"LOCKOUT_DURATION"`
	UpgradeHashOnSignIn bool          `env:"UPGRADE_HASH"`
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

type PasswordResetConfig struct {
	TokenTTL time.Duration `env:"TOKEN_TTL"`
	// Retention keeps used and expired records readable so confirmation can
	// tell them apart from unknown tokens.
	Retention   time.Duration `env:"RETENTION"`
	TokenBytes  int           `env:"TOKEN_BYTES"`
	RedisPrefix string        `env:"REDIS_PREFIX"`

	MaxRequests         int           `env:"MAX_REQUESTS"`
	Window              time.Duration `env:"WINDOW"`
	EnableEmailThrottle bool          `env:"EMAIL_THROTTLE"`
	EnableIPThrottle    bool          `env:"IP_THROTTLE"`
}

/*
====================================
EVENTS, METRICS, COOKIE
====================================
*/

type EventsConfig struct {
	Synchronous bool `env:"SYNCHRONOUS"`
	BufferSize  int  `env:"BUFFER_SIZE"`
	DropIfFull  bool `env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// CookieConfig names the host-locked cookie that carries the access token
// when no Authorization header is sent.
type CookieConfig struct {
	AccessTokenName string `env:"ACCESS_TOKEN_NAME"`
}

// DefaultConfig returns production defaults. Key material is left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodRS256),
			AccessTTL:     15 * time.Minute,
			Issuer:        "user-service",
			Audience:      "user-service",
			ServiceRole:   "ROLE_SERVICE",
		},
		Session: SessionConfig{
			RedisPrefix: "as",
		},
		Refresh: RefreshConfig{
			TTL:                 24 * time.Hour,
			RememberMeTTL:       30 * 24 * time.Hour,
			RedisPrefix:         "art",
			TreatRevokedAsTheft: true,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:             "VilnaCRM",
			Digits:             6,
			Period:             30,
			Skew:               1,
			Algorithm:          "SHA1",
			MaxAttempts:        5,
			PendingTTL:         5 * time.Minute,
			RedisPrefix:        "a2f",
			RecoveryCodeCount:  8,
			RecoveryCodeLength: 10,
			LimiterMaxAttempts: 5,
			LimiterCooldown:    15 * time.Minute,
		},
		SignIn: SignInConfig{
			LockoutEnabled:      true,
			LockoutThreshold:    5,
			LockoutDuration:     15 * time.Minute,
			UpgradeHashOnSignIn: true,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:            time.Hour,
			Retention:           24 * time.Hour,
			TokenBytes:          32,
			RedisPrefix:         "apr",
			MaxRequests:         3,
			Window:              time.Hour,
			EnableEmailThrottle: true,
			EnableIPThrottle:    true,
		},
		Password:       password.DefaultConfig(),
		PasswordPolicy: password.DefaultPolicy(),
		Events: EventsConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Cookie: CookieConfig{
			AccessTokenName: "__Host-auth_token",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch jwt.SigningMethod(strings.ToLower(c.JWT.SigningMethod)) {
	case jwt.MethodRS256, jwt.MethodES256, jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 && len(c.JWT.PublicKey) == 0 {
			return errors.New("JWT asymmetric signing requires PrivateKey or PublicKey")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("JWT hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT Issuer must be set")
	}
	if c.JWT.Audience == "" {
		return errors.New("JWT Audience must be set")
	}
	if c.JWT.ServiceRole == "" {
		return errors.New("JWT ServiceRole must be set")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.RememberMeTTL < c.Refresh.TTL {
		return errors.New("Refresh RememberMeTTL must be >= TTL")
	}

	// Two-factor
	if c.TwoFactor.Digits < 6 || c.TwoFactor.Digits > 8 {
		return errors.New("TwoFactor Digits must be between 6 and 8")
	}
	if c.TwoFactor.Period <= 0 {
		return errors.New("TwoFactor Period must be > 0")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 2 {
		return errors.New("TwoFactor Skew must be between 0 and 2")
	}
	switch strings.ToUpper(c.TwoFactor.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TwoFactor Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TwoFactor.MaxAttempts <= 0 {
		return errors.New("TwoFactor MaxAttempts must be > 0")
	}
	if c.TwoFactor.PendingTTL <= 0 {
		return errors.New("TwoFactor PendingTTL must be > 0")
	}
	if c.TwoFactor.RecoveryCodeCount <= 0 {
		return errors.New("TwoFactor RecoveryCodeCount must be > 0")
	}
	// A recovery code must never look like a TOTP code.
	if c.TwoFactor.RecoveryCodeLength < 8 || c.TwoFactor.RecoveryCodeLength <= c.TwoFactor.Digits {
		return errors.New("TwoFactor RecoveryCodeLength must be >= 8 and longer than Digits")
	}
	if c.TwoFactor.LimiterMaxAttempts <= 0 || c.TwoFactor.LimiterCooldown <= 0 {
		return errors.New("TwoFactor limiter must allow > 0 attempts over a > 0 cooldown")
	}

	// Sign-in
	if c.SignIn.LockoutEnabled {
		if c.SignIn.LockoutThreshold <= 0 {
			return errors.New("SignIn LockoutThreshold must be > 0")
		}
		if c.SignIn.LockoutDuration <= 0 {
			return errors.New("SignIn LockoutDuration must be > 0")
		}
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.Retention < 0 {
		return errors.New("PasswordReset Retention must be >= 0")
	}
	if c.PasswordReset.TokenBytes < 16 {
		return errors.New("PasswordReset TokenBytes must be >= 16")
	}
	if c.PasswordReset.MaxRequests <= 0 || c.PasswordReset.Window <= 0 {
		return errors.New("PasswordReset rate limit must allow > 0 requests over a > 0 window")
	}

	// Password
	if err := c.Password.Validate(); err != nil {
		return err
	}
	if c.PasswordPolicy.MinLength <= 0 || c.PasswordPolicy.MaxLength < c.PasswordPolicy.MinLength {
		return errors.New("PasswordPolicy lengths are invalid")
	}

	// Events
	if !c.Events.Synchronous && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 for asynchronous delivery")
	}

	// Cookie
	if !strings.HasPrefix(c.Cookie.AccessTokenName, "__Host-") {
		return errors.New("Cookie AccessTokenName must use the __Host- prefix")
	}

	return nil
}
