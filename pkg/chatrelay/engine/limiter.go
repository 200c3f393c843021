package engine

import (
	"sync"
	"time"
)

// Limiter enforces a minimum interval between allowed invocations of a
// capability by the same user. State is a last-allowed timestamp per
// (user, capability) key; denials never mutate it, so repeated denials do
// not extend the window.
type Limiter struct {
	last map[limiterKey]time.Time
	mu   sync.Mutex
}

type limiterKey struct {
	userID     string
	capability string
}

// NewLimiter creates an empty rate limiter.
func NewLimiter() *Limiter {
	return &Limiter{last: make(map[limiterKey]time.Time)}
}

// TryAcquire reports whether the user may invoke the capability at the
// instant now, given the capability's cooldown. On success the invocation
// time is recorded; on denial nothing changes. The check-and-record is
// atomic per key: two concurrent calls for the same key cannot both
// succeed within one cooldown window.
func (l *Limiter) TryAcquire(userID, capability string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}

	key := limiterKey{userID: userID, capability: capability}

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	l.last[key] = now
	return true
}

// Remaining returns how long until the user may invoke the capability
// again, or zero when already allowed. Read-only.
func (l *Limiter) Remaining(userID, capability string, now time.Time, cooldown time.Duration) time.Duration {
	if cooldown <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.last[limiterKey{userID: userID, capability: capability}]
	if !ok {
		return 0
	}
	if rem := cooldown - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}

// Forget drops all recorded invocations for a user. Called when the
// user's session is deleted through the admin API.
func (l *Limiter) Forget(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.last {
		if key.userID == userID {
			delete(l.last, key)
		}
	}
}
