package ratelimit

import "errors"

var (
	// ErrRateLimited is returned when the failed-login budget for an identifier or IP is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
