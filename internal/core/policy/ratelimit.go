package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits or refuses an action for a key (device id, client IP).
type RateLimiter interface {
	Allow(key string) bool
}

// NoLimit admits everything.
type NoLimit struct{}

func (NoLimit) Allow(string) bool { return true }

// KeyedLimiter keeps one token bucket per key and forgets idle keys.
type KeyedLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	buckets map[string]*bucket
	sweeps  int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sweepEvery controls how often idle buckets are collected, counted in Allow calls.
const sweepEvery = 1024

// NewKeyedLimiter allows `requests` per `window` for each key, with bursts up
// to `requests`. A non-positive requests disables limiting.
func NewKeyedLimiter(requests int, window time.Duration) RateLimiter {
	if requests <= 0 || window <= 0 {
		return NoLimit{}
	}
	return &KeyedLimiter{
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		idleTTL: 2 * window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	l.sweeps++
	if l.sweeps >= sweepEvery {
		l.sweeps = 0
		for k, v := range l.buckets {
			if now.Sub(v.lastSeen) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
	}
	return b.limiter.AllowN(now, 1)
}
