// Package monitoring provides rate limiting, audit logging, and error
// tracking shared across the assistant.
package monitoring

import (
	"sync"
	"time"
)

// RateLimiter admits requests per client identifier within a sliding
// window. Timestamps older than the window are pruned before each check.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string][]time.Time
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a limiter. Zero values fall back to 20 requests
// per 60 seconds.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 20
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &RateLimiter{
		windows:     make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Allow reports whether the client may proceed, recording the request
// timestamp when admitted.
func (l *RateLimiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.windows[clientID][:0]
	for _, ts := range l.windows[clientID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxRequests {
		l.windows[clientID] = kept
		return false
	}

	l.windows[clientID] = append(kept, now)
	return true
}

// RetryAfter returns the window duration, used in the denial message.
func (l *RateLimiter) RetryAfter() time.Duration {
	return l.window
}

// Reset clears all rate-limit state.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}
