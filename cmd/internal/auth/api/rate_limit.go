package authapi

import (
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// sweepEvery is how many recorded failures pass between full sweeps of
// expired IPs.
const sweepEvery = 128

type lockoutTier struct {
	Threshold int
	Duration  time.Duration
}

// loginThrottle remembers failed logins per client IP.
type loginThrottle struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	recorded int

	ipMax    int
	ipWindow time.Duration
	tiers    []lockoutTier
	keep     time.Duration
}

func newLoginThrottle(cfg Config) *loginThrottle {
	tiers := make([]lockoutTier, 0, 3)
	for _, t := range []lockoutTier{
		{Threshold: cfg.LockoutSevereThreshold, Duration: cfg.LockoutSevereDuration},
		{Threshold: cfg.LockoutLongThreshold, Duration: cfg.LockoutLongDuration},
		{Threshold: cfg.LockoutShortThreshold, Duration: cfg.LockoutShortDuration},
	} {
		if t.Threshold > 0 && t.Duration > 0 {
			tiers = append(tiers, t)
		}
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Threshold > tiers[j].Threshold })

	keep := cfg.LoginIPWindow
	for _, t := range tiers {
		if t.Duration > keep {
			keep = t.Duration
		}
	}
	return &loginThrottle{
		failures: make(map[string][]time.Time),
		ipMax:    cfg.LoginIPMax,
		ipWindow: cfg.LoginIPWindow,
		tiers:    tiers,
		keep:     keep,
	}
}

// check reports whether ip is currently blocked and for how long.
func (t *loginThrottle) check(ip net.IP, now time.Time) (bool, time.Duration) {
	if t == nil || ip == nil {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	failures := t.prune(ip.String(), now)
	if blocked, retry := evaluateWindowThrottle(now, failures, t.ipMax, t.ipWindow); blocked {
		return true, retry
	}
	return evaluateProgressiveLockout(now, failures, t.tiers)
}

func (t *loginThrottle) recordFailure(ip net.IP, now time.Time) {
	if t == nil || ip == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ip.String()
	failures := t.prune(key, now)
	// Newest first, matching the evaluate helpers.
	t.failures[key] = append([]time.Time{now}, failures...)

	t.recorded++
	if t.recorded%sweepEvery == 0 {
		t.sweep(now)
	}
}

// sweep drops every IP whose failures have all expired. Caller holds mu.
func (t *loginThrottle) sweep(now time.Time) {
	for key := range t.failures {
		t.prune(key, now)
	}
}

func (t *loginThrottle) reset(ip net.IP) {
	if t == nil || ip == nil {
		return
	}
	t.mu.Lock()
	delete(t.failures, ip.String())
	t.mu.Unlock()
}

// prune drops failures older than the longest window. Caller holds mu.
func (t *loginThrottle) prune(key string, now time.Time) []time.Time {
	failures := t.failures[key]
	cut := now.Add(-t.keep)
	n := 0
	for _, f := range failures {
		if f.After(cut) {
			failures[n] = f
			n++
		}
	}
	failures = failures[:n]
	if n == 0 {
		delete(t.failures, key)
	} else {
		t.failures[key] = failures
	}
	return failures
}

// evaluateWindowThrottle blocks once max failures fall inside window. The
// retry duration runs until the oldest of them leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, f := range failures {
		if !f.After(cut) {
			continue
		}
		count++
		if oldest.IsZero() || f.Before(oldest) {
			oldest = f
		}
	}
	if count < max {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// evaluateProgressiveLockout applies the first tier (highest threshold first)
// whose lockout, counted from the newest failure, is still running.
func evaluateProgressiveLockout(now time.Time, failures []time.Time, tiers []lockoutTier) (bool, time.Duration) {
	if len(failures) == 0 {
		return false, 0
	}
	newest := failures[0]
	for _, f := range failures[1:] {
		if f.After(newest) {
			newest = f
		}
	}
	for _, tier := range tiers {
		if tier.Threshold <= 0 || len(failures) < tier.Threshold {
			continue
		}
		until := newest.Add(tier.Duration)
		if until.After(now) {
			return true, until.Sub(now)
		}
	}
	return false, 0
}

func retryAfterHeader(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	secs := int64(retryAfter / time.Second)
	if retryAfter%time.Second != 0 {
		secs++
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}
