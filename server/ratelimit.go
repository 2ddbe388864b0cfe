package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter keyed by client
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	rate     float64 // tokens per second
	capacity int     // max tokens
	now      func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter with the given rate (requests per second)
// and burst capacity
func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*tokenBucket),
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
	}
}

// Allow checks if a request for the given key should be allowed
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket, exists := r.buckets[key]
	if !exists {
		// New clients start with a full bucket
		r.buckets[key] = &tokenBucket{
			tokens:     float64(r.capacity) - 1,
			lastUpdate: now,
		}
		return true
	}

	bucket.tokens += now.Sub(bucket.lastUpdate).Seconds() * r.rate
	bucket.lastUpdate = now
	if bucket.tokens > float64(r.capacity) {
		bucket.tokens = float64(r.capacity)
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// retryAfter returns how many whole seconds until key gains a token
func (r *RateLimiter) retryAfter(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[key]
	if !ok || r.rate <= 0 {
		return 1
	}
	missing := 1 - bucket.tokens
	if missing <= 0 {
		return 0
	}
	secs := int(missing/r.rate) + 1
	return secs
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
// onLimited, if set, is called for every rejected request.
func (r *RateLimiter) Middleware(onLimited func(req *http.Request, key string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			key := extractClientIP(req.RemoteAddr)
			if !r.Allow(key) {
				if onLimited != nil {
					onLimited(req, key)
				}
				w.Header().Set("Retry-After", strconv.Itoa(r.retryAfter(key)))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// Cleanup removes stale buckets that haven't been used recently
func (r *RateLimiter) Cleanup(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	for key, bucket := range r.buckets {
		if bucket.lastUpdate.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

// StartCleanup periodically removes stale buckets until ctx is done
func (r *RateLimiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup(maxAge)
		}
	}
}
