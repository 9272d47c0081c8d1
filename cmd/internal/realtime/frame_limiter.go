package realtime

import (
	"sync"
	"time"
)

// frameLimiter bounds how many client frames one connection may send inside a
// sliding window. A subscriber legitimately sends a handful of subscribe
// frames over a connection's lifetime (initial subscribe plus retries after
// token rotation), so the cap can be tight; sustained chatter is hostile and
// gets the connection closed by the gateway.
type frameLimiter struct {
	mu sync.Mutex

	limit  int
	window time.Duration

	// Arrival times of counted frames, oldest first.
	seen []time.Time
}

func newFrameLimiter(limit int, window time.Duration) *frameLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &frameLimiter{limit: limit, window: window}
}

// allow records a frame arriving at "now" and reports whether the connection
// is still within its window. Denied frames are not counted, so a throttled
// client recovers as soon as its earlier frames age out.
func (l *frameLimiter) allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	oldest := now.Add(-l.window)
	drop := 0
	for drop < len(l.seen) && !l.seen[drop].After(oldest) {
		drop++
	}
	if drop > 0 {
		l.seen = append(l.seen[:0], l.seen[drop:]...)
	}

	if len(l.seen) >= l.limit {
		return false
	}
	l.seen = append(l.seen, now)
	return true
}
