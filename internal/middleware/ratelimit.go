package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out a token bucket per key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	every    rate.Limit
	burst    int
	idle     time.Duration
}

// NewRateLimiter allows perSecond requests per key with the given burst.
// Buckets unused for idle are evicted by Run.
func NewRateLimiter(perSecond float64, burst int, idle time.Duration) *RateLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
	}
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	e, ok := r.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(r.every, r.burst)}
		r.limiters[key] = e
	}
	e.seen = time.Now()
	r.mu.Unlock()
	return e.lim.Allow()
}

// Len returns the number of tracked keys.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// Evict drops buckets not used since cutoff.
func (r *RateLimiter) Evict(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.limiters {
		if e.seen.Before(cutoff) {
			delete(r.limiters, key)
			n++
		}
	}
	return n
}

// Run evicts idle buckets until ctx is done.
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Evict(time.Now().Add(-r.idle))
		case <-ctx.Done():
			return
		}
	}
}

// RateLimit rejects requests over the limit with 429. Requests for which
// keyOf returns "" pass through.
func RateLimit(rl *RateLimiter, keyOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyOf(r); key != "" && !rl.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
