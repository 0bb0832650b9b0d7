// Package services – CooldownLimiter
//
// This file implements the per-user search cooldown: a minimum wait enforced
// between a user's successive accepted search actions. It is deliberately
// separate from the HTTP edge rate limiter (middleware.RateLimiter): the edge
// limiter protects the process from abusive traffic, while the cooldown is a
// product rule charged only for *accepted* page fetches.
package services

import (
	"sync"
	"time"
)

// CooldownLimiter tracks the last accepted search time per user and answers
// whether a new search may proceed. The designated admin user is exempt.
//
// State is process-local and guarded by a mutex; entries older than the
// window are evicted opportunistically during lookups to bound memory, the
// same way the HTTP limiter evicts idle token buckets.
//
// This type is safe for concurrent use.
type CooldownLimiter struct {
	window  time.Duration
	adminID string

	// Now is the clock used for all comparisons; tests override it.
	Now func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
	cleanupN uint64
}

// NewCooldownLimiter constructs a limiter enforcing the given window between
// accepted searches. adminID names the user exempt from the cooldown; an
// empty adminID exempts nobody.
func NewCooldownLimiter(window time.Duration, adminID string) *CooldownLimiter {
	return &CooldownLimiter{
		window:   window,
		adminID:  adminID,
		Now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// CheckAndRemaining reports whether userID is still inside the cooldown
// window and, if so, how long remains. The admin user always gets (false, 0).
//
// Checking is read-only: a rejected attempt must not reset the window, so the
// timestamp is only written by Mark.
func (l *CooldownLimiter) CheckAndRemaining(userID string) (bool, time.Duration) {
	if l.window <= 0 || (l.adminID != "" && userID == l.adminID) {
		return false, 0
	}
	now := l.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictStale(now)

	last, ok := l.lastSeen[userID]
	if !ok {
		return false, 0
	}
	if remaining := l.window - now.Sub(last); remaining > 0 {
		return true, remaining
	}
	return false, 0
}

// Mark records now as userID's last accepted search. Call it exactly once per
// accepted search or page fetch, never for rejected attempts.
func (l *CooldownLimiter) Mark(userID string) {
	if l.adminID != "" && userID == l.adminID {
		return
	}
	now := l.Now()
	l.mu.Lock()
	l.lastSeen[userID] = now
	l.mu.Unlock()
}

// evictStale drops entries whose window has fully elapsed. Runs under l.mu,
// every ~5000 lookups, so a quiet deployment does not accumulate one entry
// per user forever.
func (l *CooldownLimiter) evictStale(now time.Time) {
	l.cleanupN++
	if l.cleanupN < 5000 {
		return
	}
	l.cleanupN = 0
	for uid, last := range l.lastSeen {
		if now.Sub(last) >= l.window {
			delete(l.lastSeen, uid)
		}
	}
}
