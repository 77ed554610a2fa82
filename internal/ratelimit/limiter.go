// Package ratelimit provides keyed token-bucket limiters for HTTP clients
// and realtime connections.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter allows up to limit events per window for each key.
// A limit of zero or less denies everything.
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	limit       int
	window      time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

type entry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		entries:     make(map[string]*entry),
		limit:       limit,
		window:      window,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow consumes one token from key's bucket
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return false
	}

	now := l.now()
	l.cleanupLocked(now)

	e, ok := l.entries[key]
	if !ok {
		e = &entry{bucket: l.newBucket()}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.bucket.AllowN(now, 1)
}

// SetLimit reconfigures the limiter. Existing buckets are discarded.
func (l *Limiter) SetLimit(limit int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	l.window = window
	l.entries = make(map[string]*entry)
}

// Limit returns the configured events per window
func (l *Limiter) Limit() (int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit, l.window
}

// Forget drops key's bucket
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Len reports how many keys are tracked
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) newBucket() *rate.Limiter {
	interval := l.window / time.Duration(l.limit)
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, l.limit)
	}
	return rate.NewLimiter(rate.Every(interval), l.limit)
}

// cleanupLocked drops buckets idle for a full window. Such buckets have
// refilled completely, so forgetting them changes nothing.
func (l *Limiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.window {
		return
	}
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= l.window {
			delete(l.entries, key)
		}
	}
	l.lastCleanup = now
}
