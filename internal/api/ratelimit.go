package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter pairs a token-bucket limiter with the time it was last
// touched, so CleanupStale can sweep idle entries without pinning memory to every
// address that has ever connected.
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter enforces a per-client-address rate limit, generalizing the
// daemon's own per-peer SyncRateLimiter (internal/daemon/rate_limiter.go)
// from sync-peer ids to arbitrary HTTP client addresses.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	rps      float64
	burst    int
	enabled  bool
}

// NewRateLimiter builds a limiter allowing rps requests/second with the
// given burst, per distinct client address. enabled=false makes Allow
// always succeed (used in tests and when operators disable limiting).
func NewRateLimiter(rps float64, burst int, enabled bool) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rps:     rps,
		burst:   burst,
		enabled: enabled,
	}
}

// Allow reports whether a request from clientAddr may proceed.
func (r *RateLimiter) Allow(clientAddr string) bool {
	if !r.enabled {
		return true
	}
	return r.getLimiter(clientAddr).Allow()
}

func (r *RateLimiter) getLimiter(clientAddr string) *rate.Limiter {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cl, ok := r.clients[clientAddr]; ok {
		cl.lastAccess = now
		return cl.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(r.rps), r.burst)
	r.clients[clientAddr] = &clientLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

// CleanupStale removes limiters untouched for longer than maxAge, bounding
// memory growth from a long-lived daemon seeing many distinct addresses.
func (r *RateLimiter) CleanupStale(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for addr, cl := range r.clients {
		if cl.lastAccess.Before(cutoff) {
			delete(r.clients, addr)
			removed++
		}
	}
	return removed
}
