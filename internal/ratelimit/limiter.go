// Package ratelimit throttles failed login attempts with Redis fixed-window counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	// MaxLoginAttempts is the failed-attempt budget per identifier and per IP within the cooldown window.
	MaxLoginAttempts int
	// LoginCooldown is the fixed window length; counters expire after it.
	LoginCooldown time.Duration
}

// Limiter enforces per-identifier and per-IP limits on failed logins using
// Redis counters. Counters track failures only; a successful login resets them.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin checks whether the identifier+IP pair is within the login attempt
// budget. Returns ErrRateLimited when exhausted. A missing counter does not
// reveal account existence.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if err := l.checkCounter(ctx, loginKey(identifier)); err != nil {
		return err
	}
	if ip != "" {
		if err := l.checkCounter(ctx, ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure records a failed login attempt for the identifier+IP pair.
// Returns ErrRateLimited when this attempt exhausts the budget.
func (l *Limiter) RecordFailure(ctx context.Context, identifier, ip string) error {
	count, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.LoginCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if ip != "" {
		count, err = l.incrementWithTTL(ctx, ipKey(ip), l.config.LoginCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Reset clears the failed-login counters for the identifier+IP pair.
// Called after a successful login.
func (l *Limiter) Reset(ctx context.Context, identifier, ip string) error {
	keys := []string{loginKey(identifier)}
	if ip != "" {
		keys = append(keys, ipKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure counter for an identifier. Missing keys
// return zero.
func (l *Limiter) Attempts(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func loginKey(identifier string) string { return "login:fail:" + identifier }
func ipKey(ip string) string            { return "login:ip:" + ip }
