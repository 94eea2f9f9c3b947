package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// Thread-safe and suitable for concurrent API calls.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a limiter with the given burst size and refill
// rate in requests per second.
func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire attempts to acquire a token without blocking.
// Returns true if a token was acquired, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}

// Alpaca caps the trading API at 200 requests/minute per key, and the
// data API carries its own identical budget. Shared limiters keep every
// caller in the process under the cap.
var (
	alpacaTradingLimiter *RateLimiter
	alpacaDataLimiter    *RateLimiter
	rateLimiterOnce      sync.Once
)

// GetAlpacaTradingLimiter returns the shared limiter for trading endpoints.
func GetAlpacaTradingLimiter() *RateLimiter {
	rateLimiterOnce.Do(initAlpacaLimiters)
	return alpacaTradingLimiter
}

// GetAlpacaDataLimiter returns the shared limiter for market data endpoints.
func GetAlpacaDataLimiter() *RateLimiter {
	rateLimiterOnce.Do(initAlpacaLimiters)
	return alpacaDataLimiter
}

func initAlpacaLimiters() {
	// 200/min spent at ~3.3 req/s with a small burst headroom.
	alpacaTradingLimiter = NewRateLimiter(10, 200.0/60.0)
	alpacaDataLimiter = NewRateLimiter(10, 200.0/60.0)
}
