// Package ratelimit throttles anonymous write routes per client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter is a token-bucket rate limiter keyed by client. Each key may make
// rate requests per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    int
	window  time.Duration
	per     time.Duration    // time to refill one token
	now     func() time.Time // injectable clock for testing
}

// New creates a Limiter that allows n requests per window.
func New(n int, window time.Duration) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		rate:    n,
		window:  window,
		per:     window / time.Duration(n),
		now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether the request may
// proceed. It also returns the tokens left and when the bucket is full again.
func (l *Limiter) Allow(key string) (allowed bool, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Every(l.per), l.rate)}
		l.entries[key] = e
	}
	e.lastSeen = now

	allowed = e.lim.AllowN(now, 1)

	tokens := e.lim.TokensAt(now)
	remaining = int(tokens)
	resetAt = now
	if deficit := float64(l.rate) - tokens; deficit > 0 {
		resetAt = now.Add(time.Duration(deficit * float64(l.per)))
	}
	return allowed, remaining, resetAt
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int { return l.rate }

// Sweep forgets keys idle for longer than one window. Such a bucket would
// be full again, so dropping it changes nothing for the client. It returns
// the number of keys removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	cutoff := l.now().Add(-l.window)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
