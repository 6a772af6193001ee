package http

import (
	"sync"
	"time"
)

const pruneThreshold = 1024

// JoinRateLimiter is a sliding-window limiter keyed by client token.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *JoinRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	fresh := freshAttempts(rl.history[key], windowStart)
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}
	rl.history[key] = append(fresh, now)

	if len(rl.history) > pruneThreshold {
		rl.prune(windowStart)
	}
	return true
}

// prune drops keys with no attempts inside the window.
func (rl *JoinRateLimiter) prune(windowStart time.Time) {
	for key, attempts := range rl.history {
		if len(freshAttempts(attempts, windowStart)) == 0 {
			delete(rl.history, key)
		}
	}
}

func freshAttempts(attempts []time.Time, windowStart time.Time) []time.Time {
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}
