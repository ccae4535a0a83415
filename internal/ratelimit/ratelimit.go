// Package ratelimit provides keyed token-bucket limiters.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per key. Buckets idle for longer than
// the refill window of a full burst are dropped on the next sweep.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	buckets map[string]*bucket
	sweptAt time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// New allows n events per every, bursting up to burst.
func New(n int, every time.Duration, burst int) *Limiter {
	lim := rate.Limit(float64(n) / every.Seconds())
	idle := time.Duration(float64(burst)/float64(lim)*float64(time.Second)) + time.Minute
	return &Limiter{
		limit:   lim,
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		buckets: map[string]*bucket{},
	}
}

// Reserve consumes one token for key. When none is available it reports
// how long to wait before a retry can succeed.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.sweptAt) < l.idle {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= l.idle {
			delete(l.buckets, k)
		}
	}
	l.sweptAt = now
}
