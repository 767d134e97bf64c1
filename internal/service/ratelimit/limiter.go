package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key, e.g. per client address.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*bucket
	every rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

// New returns a keyed limiter allowing perSec events per second with the given burst.
func New(perSec float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		m:     make(map[string]*bucket),
		every: rate.Limit(perSec),
		burst: burst,
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		l.evict(now)
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.m[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// evict drops buckets idle long enough to have refilled completely.
func (l *Limiter) evict(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.seen) > l.idle {
			delete(l.m, k)
		}
	}
}
