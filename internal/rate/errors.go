package rate

import "errors"

var (
	// ErrRateLimited is returned when a window is full.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
