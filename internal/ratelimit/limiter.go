package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages rate limits for multiple API callers
type Limiter struct {
	limiters map[string]*callerLimiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a new rate limiter.
// requestsPerHour: total requests allowed per hour per caller (e.g., 100)
// burst: max requests in a burst (e.g., 10)
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	// Convert requests per hour to requests per second
	r := rate.Limit(float64(requestsPerHour) / 3600.0)

	return &Limiter{
		limiters: make(map[string]*callerLimiter),
		rate:     r,
		burst:    burst,
	}
}

// GetLimiter returns the rate limiter for a specific caller
func (l *Limiter) GetLimiter(caller string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.limiters[caller]
	if !exists {
		entry = &callerLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[caller] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter
}

// Prune drops limiters for callers idle longer than maxIdle, so the map
// does not grow without bound. Returns how many were dropped.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	dropped := 0
	for caller, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, caller)
			dropped++
		}
	}
	return dropped
}

// Allow checks if a request is allowed for the given caller
func (l *Limiter) Allow(caller string) bool {
	limiter := l.GetLimiter(caller)
	return limiter.Allow()
}

// Tokens returns the current number of available tokens for a caller
func (l *Limiter) Tokens(caller string) float64 {
	limiter := l.GetLimiter(caller)
	return limiter.Tokens()
}
