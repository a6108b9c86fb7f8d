package plugin

import (
	"sync"
	"time"
)

// breakerThreshold is the number of consecutive failures that opens a
// plugin's circuit breaker, per spec.md §4.6.
const breakerThreshold = 3

// breakerCooldown is how long an open breaker stays open before the next
// invocation is allowed through to probe recovery.
const breakerCooldown = 60 * time.Second

// Breaker is a per-plugin consecutive-failure counter with a cooldown,
// in the teacher's terse style rather than a pulled-in third-party circuit
// breaker library (see DESIGN.md — no such library is reachable from this
// workspace's own import graph).
type Breaker struct {
	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
}

// Allow reports whether an invocation may proceed. An open breaker still
// within its cooldown window returns false, and the caller skips the plugin.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if time.Since(b.openedAt) >= breakerCooldown {
		// Cooldown elapsed: let invocations through again to probe recovery
		// (every call is allowed until a result is recorded). RecordResult
		// closes the breaker on success or re-opens it on another failure.
		return true
	}
	return false
}

// RecordResult updates the failure counter: success resets it and closes
// the breaker; failure increments it and opens the breaker at threshold.
func (b *Breaker) RecordResult(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		b.open = false
		return
	}

	b.failures++
	if b.failures >= breakerThreshold {
		b.open = true
		b.openedAt = time.Now()
	}
}

// BreakerSet holds one Breaker per plugin name, created lazily.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet returns an empty set.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*Breaker)}
}

// For returns the Breaker for name, creating it on first use.
func (s *BreakerSet) For(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = &Breaker{}
		s.breakers[name] = b
	}
	return b
}
