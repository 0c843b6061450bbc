// Package ratelimit implements the per-connection message rate limiting of
// spec §4.6: "a token window of WS_RATE_LIMIT_PER_SECOND messages per
// rolling second per connection". The per-client map-with-cleanup shape is
// grounded on vtphan-switchboard's internal/router/rate_limiter.go; the
// token-accounting itself uses golang.org/x/time/rate (a sibling of the
// golang.org/x/sync package the teacher already depends on) instead of a
// hand-rolled fixed window, since spec.md requires a rolling per-second
// window rather than switchboard's per-minute fixed window.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token-bucket limiter per connection.
type Limiter struct {
	perSecond float64

	mu      sync.Mutex
	clients map[string]*entry
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New builds a Limiter enforcing perSecond messages/second/connection with
// a burst equal to perSecond, matching a rolling one-second token window.
func New(perSecond int) *Limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Limiter{
		perSecond: float64(perSecond),
		clients:   make(map[string]*entry),
	}
}

// Allow reports whether connectionID may send a message now, consuming a
// token if so.
func (l *Limiter) Allow(connectionID string) bool {
	l.mu.Lock()
	e, ok := l.clients[connectionID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.perSecond), int(l.perSecond))}
		l.clients[connectionID] = e
	}
	e.lastSeen = time.Now()
	lim := e.limiter
	l.mu.Unlock()

	return lim.Allow()
}

// Forget drops a connection's tracked state; called on disconnect so the
// map does not grow unbounded across a session's lifetime.
func (l *Limiter) Forget(connectionID string) {
	l.mu.Lock()
	delete(l.clients, connectionID)
	l.mu.Unlock()
}

// Cleanup removes entries idle longer than maxIdle, for periodic sweeping
// on long-lived sessions that accumulate many short-lived reconnects.
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, id)
		}
	}
}
