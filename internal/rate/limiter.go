package rate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const slidingWindowScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now_ms - window_ms)
local count = redis.call("ZCARD", key)
if count >= limit then
  return {0, count}
end
redis.call("ZADD", key, now_ms, member)
redis.call("PEXPIRE", key, window_ms)
return {1, count + 1}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// SlidingWindow admits at most Limit hits per key within any trailing Window.
type SlidingWindow struct {
	redis  redis.UniversalClient
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSlidingWindow creates a [SlidingWindow] backed by the given Redis client.
func NewSlidingWindow(redisClient redis.UniversalClient, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		redis:  redisClient,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key when the window has room. It returns
// ErrRateLimited without recording anything when the window is full.
func (w *SlidingWindow) Allow(ctx context.Context, key string) (int, error) {
	if w == nil || w.limit <= 0 || w.window <= 0 {
		return 0, nil
	}

	member, err := windowMember(w.now())
	if err != nil {
		return 0, err
	}

	res, err := slidingWindowLua.Run(
		ctx,
		w.redis,
		[]string{key},
		w.now().UnixMilli(),
		w.window.Milliseconds(),
		w.limit,
		member,
	).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("%w: invalid window script response", ErrRedisUnavailable)
	}
	if res[0] == 0 {
		return int(res[1]), ErrRateLimited
	}
	return int(res[1]), nil
}

func windowMember(now time.Time) (string, error) {
	var suffix [6]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + hex.EncodeToString(suffix[:]), nil
}

// Counter is a fixed-window failure counter.
type Counter struct {
	redis redis.UniversalClient
}

// NewCounter creates a [Counter] backed by the given Redis client.
func NewCounter(redisClient redis.UniversalClient) *Counter {
	return &Counter{redis: redisClient}
}

// Increment bumps key and starts its window on the first hit.
func (c *Counter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 && window > 0 {
		if err := c.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Get returns the current count; a missing key is zero.
func (c *Counter) Get(ctx context.Context, key string) (int64, error) {
	count, err := c.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Reset clears the given keys.
func (c *Counter) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
