package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound provider invocations per provider name,
// so a rate-limit error from one provider's own backoff doesn't starve
// invocation slots meant for another.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	newLimit func() *rate.Limiter
}

// NewRateLimiter builds a limiter allowing `perSecond` invocations/sec with
// a burst of `burst`, applied independently per provider name.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		newLimit: func() *rate.Limiter { return rate.NewLimiter(rate.Limit(perSecond), burst) },
	}
}

func (rl *RateLimiter) limiterFor(name string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[name]
	if !ok {
		l = rl.newLimit()
		rl.limiters[name] = l
	}
	return l
}

// Wait blocks until an invocation slot for the named provider is free or
// ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, providerName string) error {
	return rl.limiterFor(providerName).Wait(ctx)
}

// Penalize shrinks the effective rate for providerName for the given
// duration in response to an observed rate-limit error, then restores it.
// This runs in the background; callers should not wait on it.
func (rl *RateLimiter) Penalize(providerName string, retryAfter time.Duration) {
	l := rl.limiterFor(providerName)
	original := l.Limit()
	l.SetLimit(rate.Limit(0.1))
	go func() {
		time.Sleep(retryAfter)
		rl.mu.Lock()
		defer rl.mu.Unlock()
		if current, ok := rl.limiters[providerName]; ok && current == l {
			l.SetLimit(original)
		}
	}()
}
