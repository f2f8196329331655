package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval for each key.
// It is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed map[string]time.Time
	now         func() time.Time
}

// New creates a new limiter with the specified interval.
// A non-positive interval allows every action.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval:    interval,
		lastAllowed: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Allow checks if an action for key is allowed at this time.
// Returns true if allowed (and records this as the last allowed time for key),
// or false with the remaining wait duration if rate-limited.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	last, seen := l.lastAllowed[key]
	if !seen || now.Sub(last) >= l.interval {
		l.lastAllowed[key] = now
		return true, 0
	}

	return false, l.interval - now.Sub(last)
}

// Forget drops the state kept for key, allowing its next action immediately
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.lastAllowed, key)
	l.mu.Unlock()
}

// Reset clears the state of every key
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = make(map[string]time.Time)
	l.mu.Unlock()
}

// Len returns the number of keys currently tracked
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastAllowed)
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
