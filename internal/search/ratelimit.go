package search

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxBuckets bounds memory from unbounded per-IP growth.
const maxBuckets = 10000

// bucketWindow and bucketMax implement spec.md §4.5/§8's per-(ip,engine)
// token bucket: 60 requests per 60s window.
const (
	bucketWindow = 60 * time.Second
	bucketMax    = 60
)

// RateLimiter enforces spec.md §4.5's per-(ip,engine) RateBucket using
// golang.org/x/time/rate.Limiter keyed by "ip|engine". Buckets are never
// swept on a timer; the map is capped at maxBuckets by evicting an
// arbitrary bucket when a new key arrives at the cap.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter constructs an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow reports whether a request from ip against engine is within the
// 60-per-60s budget, consuming a token if so.
func (rl *RateLimiter) Allow(ip, engine string) bool {
	key := fmt.Sprintf("%s|%s", ip, engine)

	rl.mu.Lock()
	limiter, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= maxBuckets {
			rl.evictOldestLocked()
		}
		limiter = rate.NewLimiter(rate.Every(bucketWindow/bucketMax), bucketMax)
		rl.buckets[key] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// evictOldestLocked drops an arbitrary bucket to make room; callers hold mu.
func (rl *RateLimiter) evictOldestLocked() {
	for k := range rl.buckets {
		delete(rl.buckets, k)
		return
	}
}
