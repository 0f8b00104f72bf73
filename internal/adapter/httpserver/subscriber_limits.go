package httpserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL      = 10 * time.Minute
	limiterCleanupEvery = 5 * time.Minute
)

// limitReason describes why a subscriber was turned away before the upgrade.
type limitReason string

const (
	limitReasonPerIP limitReason = "per_ip_limit"
	limitReasonRate  limitReason = "rate_limit"
)

// subscriberLimits guards the subscriber endpoint per remote IP. A zero value for either
// setting disables that check.
type subscriberLimits struct {
	maxPerIP int

	mu     sync.Mutex
	active map[string]int

	rate *connectionRate
}

func newSubscriberLimits(maxPerIP int, perSecond float64, burst int) *subscriberLimits {
	l := &subscriberLimits{
		maxPerIP: maxPerIP,
		active:   make(map[string]int),
	}
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.rate = newConnectionRate(perSecond, burst)
	}
	return l
}

// acquire reserves a slot for ip. The caller must release it once the subscriber leaves.
func (l *subscriberLimits) acquire(ip string) (bool, limitReason) {
	if l.rate != nil && !l.rate.allow(ip) {
		return false, limitReasonRate
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPerIP > 0 && l.active[ip] >= l.maxPerIP {
		return false, limitReasonPerIP
	}
	l.active[ip]++
	return true, ""
}

func (l *subscriberLimits) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.active[ip]; count > 1 {
		l.active[ip] = count - 1
	} else {
		delete(l.active, ip)
	}
}

func (l *subscriberLimits) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[ip]
}

// connectionRate is a token bucket per IP for new subscriber connections.
type connectionRate struct {
	mu        sync.Mutex
	limiters  map[string]*rateEntry
	limit     rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newConnectionRate(perSecond float64, burst int) *connectionRate {
	return &connectionRate{
		limiters:  make(map[string]*rateEntry),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(limiterCleanupEvery),
	}
}

func (r *connectionRate) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.cleanupAt) {
		r.evictIdle(now)
		r.cleanupAt = now.Add(limiterCleanupEvery)
	}

	entry, ok := r.limiters[ip]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// evictIdle drops buckets unused for limiterIdleTTL. Must be called with mu held.
func (r *connectionRate) evictIdle(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, ip)
		}
	}
}

func (r *connectionRate) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
