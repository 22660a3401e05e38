// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit is a fixed-window allowance.
type Limit struct {
	Max    int64
	Window time.Duration
}

type RateLimiter struct {
	client *redis.Client
	login  Limit
	mail   Limit
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		client: client,
		login:  Limit{Max: 5, Window: 15 * time.Minute},
		mail:   Limit{Max: 3, Window: time.Hour},
	}
}

// CheckLoginAttempt checks if login attempt is allowed and returns the
// attempts left in the current window.
func (r *RateLimiter) CheckLoginAttempt(ctx context.Context, ip, username string) (bool, int64, error) {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, strings.ToLower(username))

	count, err := r.hit(ctx, key, r.login.Window)
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment login attempt: %w", err)
	}

	remaining := r.login.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= r.login.Max, remaining, nil
}

// ResetLoginAttempts resets the login attempt counter
func (r *RateLimiter) ResetLoginAttempts(ctx context.Context, ip, username string) error {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, strings.ToLower(username))
	return r.client.Del(ctx, key).Err()
}

// CheckMailAttempt limits outbound mail per (kind, email), e.g. password
// reset or confirmation resend. The answer does not depend on whether the
// address belongs to an account.
func (r *RateLimiter) CheckMailAttempt(ctx context.Context, kind, email string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", kind, strings.ToLower(email))

	count, err := r.hit(ctx, key, r.mail.Window)
	if err != nil {
		return false, fmt.Errorf("failed to increment %s attempt: %w", kind, err)
	}
	return count <= r.mail.Max, nil
}

func (r *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Set expiration on first attempt
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}
