package userauth

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/i18n"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/audit"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/limiters"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/stores"
	"github.com/VilnaCRM-Org/user-service-sub004/jwt"
	"github.com/VilnaCRM-Org/user-service-sub004/mail"
	"github.com/VilnaCRM-Org/user-service-sub004/password"
	"github.com/VilnaCRM-Org/user-service-sub004/refresh"
	"github.com/VilnaCRM-Org/user-service-sub004/session"
	"github.com/redis/go-redis/v9"
)

// Builder collects the Engine's configuration and collaborators.
//
// A Builder is single-use: Build may be called once. It is not safe for
// concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	logger       *slog.Logger
	eventSink    EventSink
	mailer       mail.Sender
	translator   i18n.Translator
	clock        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client for every durable record. Cluster and sentinel
// clients are accepted.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink replaces the default sink, which writes events to the
// logger at their severity level.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithMailer sets the sender for password reset codes. Defaults to a
// mail.LogSender on the logger.
func (b *Builder) WithMailer(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

// WithTranslator replaces the built-in English/Ukrainian catalog.
func (b *Builder) WithTranslator(t i18n.Translator) *Builder {
	b.translator = t
	return b
}

// WithClock overrides time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
//
// Build fails when the Redis client or user provider is missing, the
// configuration is invalid, or the signing keys cannot be parsed.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	cfg := cloneConfig(b.config)
	cfg.JWT.SigningMethod = strings.ToLower(cfg.JWT.SigningMethod)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	// Verified for unknown emails so both sign-in failures cost one hash.
	dummyHash, err := hasher.Hash("userauth-dummy-password")
	if err != nil {
		return nil, err
	}

	translator := b.translator
	if translator == nil {
		catalog, err := i18n.NewCatalog()
		if err != nil {
			return nil, err
		}
		translator = catalog
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = mail.NewLogSender(logger)
	}

	var sink EventSink = b.eventSink
	if sink == nil {
		sink = NewSlogSink(logger)
	}

	engine := &Engine{
		config: cfg,

		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		refresh:  refresh.NewStore(b.redis, cfg.Refresh.RedisPrefix),
		pending:  stores.NewPendingTwoFactorStore(b.redis, cfg.TwoFactor.RedisPrefix),
		resets:   stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix, cfg.PasswordReset.Retention),

		lockout: limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
			Enabled:   cfg.SignIn.LockoutEnabled,
			Threshold: cfg.SignIn.LockoutThreshold,
			Duration:  cfg.SignIn.LockoutDuration,
		}),
		resetLimiter: limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
			EnableEmailThrottle: cfg.PasswordReset.EnableEmailThrottle,
			EnableIPThrottle:    cfg.PasswordReset.EnableIPThrottle,
			MaxRequests:         cfg.PasswordReset.MaxRequests,
			Window:              cfg.PasswordReset.Window,
		}),
		twoFactorLimiter: limiters.NewTwoFactorLimiter(b.redis, limiters.TwoFactorLimiterConfig{
			MaxAttempts: cfg.TwoFactor.LimiterMaxAttempts,
			Cooldown:    cfg.TwoFactor.LimiterCooldown,
		}),

		jwt:       jm,
		hasher:    hasher,
		totp:      newTOTPGenerator(cfg.TwoFactor),
		dummyHash: dummyHash,

		users:      &userAdapter{provider: b.userProvider},
		mailer:     mailer,
		translator: translator,
		logger:     logger,
		events: audit.NewDispatcher(audit.Config{
			Synchronous: cfg.Events.Synchronous,
			BufferSize:  cfg.Events.BufferSize,
			DropIfFull:  cfg.Events.DropIfFull,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
		clock:   b.clock,
	}

	b.built = true
	return engine, nil
}
