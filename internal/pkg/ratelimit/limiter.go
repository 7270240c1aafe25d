// Package ratelimit counts Basic-auth attempts per client and username so
// the token endpoint cannot be used to brute-force the credential table.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store is a fixed-window counter.
type Store interface {
	// Incr bumps key and returns the new count. The window starts on the
	// first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// TTL is the time left in key's window.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, key string) error
}

type LoginLimiter struct {
	store       Store
	maxAttempts int64
	window      time.Duration
}

func NewLoginLimiter(store Store, maxAttempts int64, window time.Duration) *LoginLimiter {
	return &LoginLimiter{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func loginKey(ip, username string) string {
	return fmt.Sprintf("ratelimit:login:%s:%s", ip, username)
}

// CheckLoginAttempt records an attempt and reports whether it may proceed.
// When it may not, retryAfter is the time until the window resets.
func (l *LoginLimiter) CheckLoginAttempt(ctx context.Context, ip, username string) (allowed bool, retryAfter time.Duration, err error) {
	key := loginKey(ip, username)

	count, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment login attempt: %w", err)
	}
	if count <= l.maxAttempts {
		return true, 0, nil
	}

	ttl, err := l.store.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// ResetLoginAttempts clears the counter after a successful login.
func (l *LoginLimiter) ResetLoginAttempts(ctx context.Context, ip, username string) error {
	return l.store.Del(ctx, loginKey(ip, username))
}
