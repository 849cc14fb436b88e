package router

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimiter caps inbound frames per connection in fixed one-minute windows.
type RateLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	limit   int
	clients map[string]*clientLimit
}

type clientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows limit frames per minute per key. A limit of zero
// or less disables limiting.
func NewRateLimiter(limit int, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{
		clock:   clk,
		limit:   limit,
		clients: make(map[string]*clientLimit),
	}
}

// Allow records one frame for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	limit, ok := rl.clients[key]
	if !ok || now.Sub(limit.windowStart) >= time.Minute {
		rl.clients[key] = &clientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}
	limit.messageCount++
	return true
}

// Remove drops a key's state, used when its connection closes.
func (rl *RateLimiter) Remove(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}

// Cleanup removes entries idle for more than five windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
