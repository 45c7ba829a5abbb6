package ratelimiter

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter allows one action per interval and is safe for concurrent use.
// It spaces out on-demand sync triggers.
type Limiter struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	interval    time.Duration
	lastAllowed time.Time
}

// New creates a new rate limiter with the specified interval on the real clock.
// A zero interval allows every action.
func New(interval time.Duration) *Limiter {
	return NewWithClock(interval, clockwork.NewRealClock())
}

// NewWithClock creates a rate limiter driven by the given clock
func NewWithClock(interval time.Duration, clock clockwork.Clock) *Limiter {
	return &Limiter{
		clock:    clock,
		interval: interval,
	}
}

// Allow checks if an action is allowed at this time.
// Returns true if allowed (and records this as the last allowed time),
// or false with the remaining wait duration if rate-limited.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.lastAllowed.IsZero() || now.Sub(l.lastAllowed) >= l.interval {
		l.lastAllowed = now
		return true, 0
	}

	return false, l.interval - now.Sub(l.lastAllowed)
}

// Reset clears the limiter state, allowing the next action immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.mu.Unlock()
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
