package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/rate"
	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the sign-in lockout limiter.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutLimiter counts failed sign-ins per email and locks the email for
// Duration once Threshold failures accumulate inside one window.
type LockoutLimiter struct {
	redis   redis.UniversalClient
	counter *rate.Counter
	config  LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{
		redis:   redisClient,
		counter: rate.NewCounter(redisClient),
		config:  cfg,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (l *LockoutLimiter) failuresKey(email string) string {
	return "alf:" + normalizeEmail(email)
}

func (l *LockoutLimiter) lockKey(email string) string {
	return "alo:" + normalizeEmail(email)
}

// Locked reports whether the email is currently locked out.
func (l *LockoutLimiter) Locked(ctx context.Context, email string) (bool, error) {
	if l == nil || !l.config.Enabled || email == "" {
		return false, nil
	}
	n, err := l.redis.Exists(ctx, l.lockKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure increments the failure counter for an email. It returns the
// failure count and whether this failure reached the threshold, in which case
// the lock is set and the counter cleared.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, email string) (int, bool, error) {
	if l == nil || !l.config.Enabled || email == "" {
		return 0, false, nil
	}

	count, err := l.counter.Increment(ctx, l.failuresKey(email), l.config.Duration)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if count < int64(l.config.Threshold) {
		return int(count), false, nil
	}

	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.lockKey(email), count, l.config.Duration)
		pipe.Del(ctx, l.failuresKey(email))
		return nil
	})
	if err != nil {
		return int(count), false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), true, nil
}

// Reset clears the failure counter after a successful sign-in. An active
// lock is left to expire.
func (l *LockoutLimiter) Reset(ctx context.Context, email string) error {
	if l == nil || !l.config.Enabled || email == "" {
		return nil
	}
	if err := l.counter.Reset(ctx, l.failuresKey(email)); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Duration is the configured lock length.
func (l *LockoutLimiter) Duration() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Duration
}
