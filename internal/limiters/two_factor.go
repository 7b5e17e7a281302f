package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTwoFactorMaxAttempts = 5
	defaultTwoFactorCooldown    = time.Minute
)

var (
	ErrTwoFactorRateLimited = errors.New("two-factor rate limited")
	ErrTwoFactorUnavailable = errors.New("two-factor limiter unavailable")
)

// TwoFactorLimiterConfig holds thresholds for code checks outside the
// pending-session flow (confirm and disable).
type TwoFactorLimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

type TwoFactorLimiter struct {
	counter     *rate.Counter
	maxAttempts int64
	cooldown    time.Duration
}

// NewTwoFactorLimiter creates a two-factor limiter. Zero-value fields in cfg
// fall back to defaults (5 attempts / 60s).
func NewTwoFactorLimiter(redisClient redis.UniversalClient, cfg TwoFactorLimiterConfig) *TwoFactorLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultTwoFactorMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultTwoFactorCooldown
	}
	return &TwoFactorLimiter{counter: rate.NewCounter(redisClient), maxAttempts: int64(max), cooldown: cd}
}

func (l *TwoFactorLimiter) key(userID string) string {
	return "a2fl:" + userID
}

// Check rejects when the user already spent the failure budget.
func (l *TwoFactorLimiter) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	count, err := l.counter.Get(ctx, l.key(userID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

// RecordFailure counts one rejected code.
func (l *TwoFactorLimiter) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if _, err := l.counter.Increment(ctx, l.key(userID), l.cooldown); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return nil
}

// Reset clears the failure budget after an accepted code.
func (l *TwoFactorLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	if err := l.counter.Reset(ctx, l.key(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return nil
}
