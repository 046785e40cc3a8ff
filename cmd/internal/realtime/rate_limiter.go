package realtime

import "time"

// frameLimiter bounds inbound frames on one feed connection to max per window.
// It is only touched by the connection's read loop and needs no locking.
type frameLimiter struct {
	// ring holds the arrival times of the last max admitted frames.
	ring   []time.Time
	next   int
	window time.Duration
}

func newFrameLimiter(max int, window time.Duration) *frameLimiter {
	if max <= 0 {
		max = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &frameLimiter{ring: make([]time.Time, max), window: window}
}

// allow admits a frame arriving at now when fewer than max frames were
// admitted within the preceding window.
func (l *frameLimiter) allow(now time.Time) bool {
	oldest := l.ring[l.next]
	if !oldest.IsZero() && now.Sub(oldest) < l.window {
		return false
	}
	l.ring[l.next] = now
	l.next = (l.next + 1) % len(l.ring)
	return true
}
