// Package security holds the request-hardening pieces of the webhook
// surface: rate limiting and outbound URL validation.
package security

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a global ceiling plus a per-user limit keyed by
// the platform user key.
type RateLimiter struct {
	globalLimiter *rate.Limiter
	userLimiters  map[string]*rate.Limiter
	mu            sync.RWMutex

	userRate  float64
	userBurst int
}

// NewRateLimiter creates a limiter. globalRate bounds the whole
// service; userRate bounds each user key.
func NewRateLimiter(globalRate float64, globalBurst int, userRate float64, userBurst int) *RateLimiter {
	return &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		userLimiters:  make(map[string]*rate.Limiter),
		userRate:      userRate,
		userBurst:     userBurst,
	}
}

// Allow reports whether a request from the given user may proceed.
func (rl *RateLimiter) Allow(userKey string) bool {
	if !rl.globalLimiter.Allow() {
		return false
	}
	return rl.getUserLimiter(userKey).Allow()
}

// Wait blocks until the request may proceed or the context ends.
func (rl *RateLimiter) Wait(ctx context.Context, userKey string) error {
	if err := rl.globalLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit: %w", err)
	}
	if err := rl.getUserLimiter(userKey).Wait(ctx); err != nil {
		return fmt.Errorf("user rate limit: %w", err)
	}
	return nil
}

func (rl *RateLimiter) getUserLimiter(userKey string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.userLimiters[userKey]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring the write lock.
	if limiter, exists := rl.userLimiters[userKey]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.userRate), rl.userBurst)
	rl.userLimiters[userKey] = limiter
	return limiter
}
