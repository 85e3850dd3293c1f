// Package ratelimit implements a per-client token bucket rate limiter.
// Thread-safe. No background goroutines — tokens are refilled lazily on
// each Allow call, and idle buckets are swept inline so the client map
// cannot grow without bound.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client has exhausted its token bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// A bucket idle longer than this is dropped; the next request from that
// client starts over with a full bucket, which only ever grants more.
const idleTTL = 10 * time.Minute

// Config configures the token bucket rate limiter.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited (Allow always succeeds).
	BurstSize         int // Maximum tokens in bucket. 0 = defaults to RequestsPerMinute.
}

// perSecond returns the refill rate and bucket capacity implied by the
// config. A rate of 0 disables limiting entirely.
func (c Config) perSecond() (rate, burst float64) {
	burstSize := c.BurstSize
	if burstSize <= 0 {
		burstSize = c.RequestsPerMinute
	}
	if burstSize <= 0 {
		burstSize = 1
	}
	return float64(c.RequestsPerMinute) / 60.0, float64(burstSize)
}

// Limiter is a per-client token bucket rate limiter. Each client gets an
// independent bucket; one client cannot exhaust another's quota.
type Limiter struct {
	mu        sync.Mutex
	clients   map[string]*bucket
	rate      float64 // tokens per second
	burst     float64 // max bucket capacity
	nextSweep time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewLimiter creates a rate limiter with the given configuration.
// If RequestsPerMinute is 0, Allow always succeeds (unlimited).
func NewLimiter(cfg Config) *Limiter {
	rate, burst := cfg.perSecond()
	return &Limiter{
		clients:   make(map[string]*bucket),
		rate:      rate,
		burst:     burst,
		nextSweep: time.Now().Add(idleTTL),
	}
}

// Allow checks whether the client has tokens remaining. Consumes one token
// on success. Returns ErrRateLimited if the bucket is empty.
func (l *Limiter) Allow(clientID string) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.nextSweep) {
		l.sweep(now)
	}

	b, ok := l.clients[clientID]
	if !ok {
		// First request: start with a full bucket.
		b = &bucket{tokens: l.burst}
		l.clients[clientID] = b
	}

	// Refill based on time since the last request, then stamp the bucket.
	if !b.lastSeen.IsZero() {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// sweep drops buckets that have been idle past the TTL. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	for id, b := range l.clients {
		if now.Sub(b.lastSeen) > idleTTL {
			delete(l.clients, id)
		}
	}
	l.nextSweep = now.Add(idleTTL)
}
