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

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type PasswordResetConfig struct {
	EnableEmailThrottle bool
	EnableIPThrottle    bool
	MaxRequests         int
	Window              time.Duration
}

type PasswordResetLimiter struct {
	config PasswordResetConfig
	window *rate.SlidingWindow
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	return &PasswordResetLimiter{
		config: cfg,
		window: rate.NewSlidingWindow(redisClient, cfg.MaxRequests, cfg.Window),
	}
}

// CheckRequest admits one reset request for the email and the caller IP.
// Unknown and known emails consume the same budget.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableEmailThrottle && email != "" {
		if err := l.allow(ctx, requestEmailKey(email)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.allow(ctx, requestIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *PasswordResetLimiter) allow(ctx context.Context, key string) error {
	_, err := l.window.Allow(ctx, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrResetRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
}

func requestEmailKey(email string) string {
	return "apri:" + strings.ToLower(strings.TrimSpace(email))
}

func requestIPKey(ip string) string {
	return "aprip:" + ip
}
