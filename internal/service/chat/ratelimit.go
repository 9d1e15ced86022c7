package chat

import (
	"sync"
	"time"
)

// sweepThreshold is the number of tracked keys above which stale windows are pruned.
const sweepThreshold = 1024

type typingKey struct {
	conversationID int64
	userID         int64
}

type window struct {
	start time.Time
	count int
}

// rateLimiter allows up to limit events per key in each fixed window.
// A nil limiter or a non-positive limit allows everything.
type rateLimiter struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[typingKey]*window
}

func newRateLimiter(limit int, period time.Duration, now func() time.Time) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{
		limit:   limit,
		period:  period,
		now:     now,
		windows: make(map[typingKey]*window),
	}
}

func (r *rateLimiter) allow(key typingKey) bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.windows) > sweepThreshold {
		r.sweep(now)
	}

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.period {
		r.windows[key] = &window{start: now, count: 1}
		return true
	}
	w.count++
	return w.count <= r.limit
}

func (r *rateLimiter) sweep(now time.Time) {
	for key, w := range r.windows {
		if now.Sub(w.start) >= r.period {
			delete(r.windows, key)
		}
	}
}
