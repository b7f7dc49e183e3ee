package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig shapes a KeyedLimiter. PerMinute is the sustained rate for a single key and
// Burst the number of attempts it may make back to back.
type LimiterConfig struct {
	PerMinute int
	Burst     int
	IdleTTL   time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key, typically "scope:client-ip". Buckets idle for
// longer than IdleTTL are swept.
type KeyedLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// LimiterOption customises a KeyedLimiter.
type LimiterOption func(*KeyedLimiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *KeyedLimiter) { l.now = now }
}

// NewKeyedLimiter builds a limiter from cfg, filling in defaults for unset fields.
func NewKeyedLimiter(cfg LimiterConfig, opts ...LimiterOption) *KeyedLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.PerMinute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	l := &KeyedLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(time.Minute / time.Duration(cfg.PerMinute)),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow reports whether key may perform one more attempt now.
func (l *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweepLocked(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Tracked returns how many keys currently hold a bucket.
func (l *KeyedLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedLimiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
