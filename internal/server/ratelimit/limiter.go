// Package ratelimit implements per-key token bucket rate limiting for
// HTTP handlers.
package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int           // tokens left in the bucket
	RetryAfter time.Duration // wait before retrying, 0 when allowed
}

// Limiter manages one token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	stop    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a rate limiter allowing rps requests per second per
// key with the given burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow checks whether a request under the given key may proceed.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	allowed := b.limiter.Allow()
	remaining := max(int(b.limiter.Tokens()), 0)
	var retryAfter time.Duration
	if !allowed {
		retryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}
	return Result{Allowed: allowed, Remaining: remaining, RetryAfter: retryAfter}
}

// SetHeaders reflects the check outcome in the standard rate limit
// response headers.
func SetHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
	if !result.Allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())))
	}
}

// cleanupLoop drops idle buckets every 10 minutes.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup removes buckets that are full and have not been used recently.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	staleThreshold := time.Now().Add(-10 * time.Minute)
	for key, b := range l.buckets {
		if b.lastSeen.Before(staleThreshold) && b.limiter.Tokens() >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	close(l.stop)
}
