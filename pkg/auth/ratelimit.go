package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	// RequestsPerMinute is the sustained rate. Zero or negative disables
	// limiting for the tier.
	RequestsPerMinute int

	// Burst is the number of requests allowed at once. Zero means
	// RequestsPerMinute.
	Burst int
}

func (t TierConfig) limiter() *rate.Limiter {
	burst := t.Burst
	if burst <= 0 {
		burst = t.RequestsPerMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.RequestsPerMinute)), burst)
}

// idleTTL is how long an unused per-subject bucket is kept.
const idleTTL = 10 * time.Minute

// TokenBucketLimiter keeps one token bucket per subject and tier in memory.
type TokenBucketLimiter struct {
	tiers       map[string]TierConfig
	defaultTier TierConfig

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a rate limiter with per-tier configuration.
// Tiers not in the map use defaultTier.
func NewTokenBucketLimiter(tiers map[string]TierConfig, defaultTier TierConfig) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:       tiers,
		defaultTier: defaultTier,
		buckets:     make(map[string]*bucket),
		now:         time.Now,
	}
}

// Allow reports ErrTooManyRequests when the identity's bucket is empty.
func (l *TokenBucketLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()
	cfg, ok := l.tiers[tier]
	if !ok {
		cfg = l.defaultTier
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil // no limit
	}

	key := identity.Subject + ":" + tier
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: cfg.limiter()}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.sweep(now)
	l.mu.Unlock()

	if !b.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops idle buckets at most once per idleTTL. Caller holds mu.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idleTTL {
			delete(l.buckets, key)
		}
	}
}

// bucketCount returns the number of tracked buckets.
func (l *TokenBucketLimiter) bucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
