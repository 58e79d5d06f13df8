package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window counter keyed by (identity-class, identifier)
// strings such as "login:a@x.com" or "api:tlk_abc123". Eviction is lazy:
// a key's stale entries are dropped on its next admission check, so there
// is no background sweeper.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	now     func() time.Time
}

// Decision is the outcome of an admission check. RetryAfter is only
// meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

func New() *Limiter {
	return &Limiter{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Admit records an attempt for key and reports whether it is within
// limit attempts per window. The check and the increment happen under
// one lock so concurrent admissions for the same key cannot both pass
// at the boundary.
func (l *Limiter) Admit(key string, limit int, window time.Duration) Decision {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	attempts := l.entries[key]

	// drop attempts that slid out of the window
	live := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if len(live) >= limit {
		retry := live[0].Add(window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		l.entries[key] = live
		return Decision{Allowed: false, RetryAfter: retry}
	}

	l.entries[key] = append(live, now)
	return Decision{Allowed: true}
}

// Reset clears the counter for a key, e.g. after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}
