// Package engine implements the session and command dispatch core of the
// relay: per-user conversation state, capability cooldowns, ordered prefix
// routing, and one-shot reminder scheduling. Everything here is in-memory
// and concurrent-safe; transport and provider calls live outside.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxHistory is the default bound on turns kept per session.
const DefaultMaxHistory = 10

// DefaultSessionTTL is the inactivity duration before a session is evicted.
const DefaultSessionTTL = time.Hour

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation turn in a session's history.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Session holds the bounded conversation state for one user.
type Session struct {
	// UserID is the stable platform identifier for the user.
	UserID string

	// history is the ordered turn log, oldest first.
	history []Turn

	// maxHistory bounds history; trimming drops the oldest turns.
	maxHistory int

	// CreatedAt is the session creation timestamp.
	CreatedAt time.Time

	// lastActiveAt is the timestamp of the last inbound event.
	lastActiveAt time.Time

	mu sync.RWMutex
}

// AppendTurn appends a turn to the history, trims to the configured bound,
// and updates the activity timestamp. Trimming always drops the oldest
// turns, so len(history) never exceeds maxHistory.
func (s *Session) AppendTurn(role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.lastActiveAt = time.Now()
}

// Touch updates the activity timestamp without adding a turn. Used for
// inbound events that do not become part of the conversation (commands).
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

// Snapshot returns a consistent copy of the history. Mutations after the
// call are not visible in the returned slice.
func (s *Session) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the number of turns currently in the history.
func (s *Session) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// LastActiveAt returns the last activity timestamp.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}

// SessionStore owns all live sessions, keyed by user ID. Sessions are
// created lazily on first access and evicted by the sweeper after the TTL.
type SessionStore struct {
	sessions   map[string]*Session
	maxHistory int
	ttl        time.Duration
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewSessionStore creates a session store. Zero maxHistory or ttl fall back
// to the package defaults.
func NewSessionStore(maxHistory int, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		sessions:   make(map[string]*Session),
		maxHistory: maxHistory,
		ttl:        ttl,
		logger:     logger.With("component", "sessions"),
	}
}

// TTL returns the configured inactivity TTL.
func (ss *SessionStore) TTL() time.Duration {
	return ss.ttl
}

// GetOrCreate returns the session for userID, creating an empty one on
// first access. Never fails.
func (ss *SessionStore) GetOrCreate(userID string) *Session {
	ss.mu.RLock()
	if s, ok := ss.sessions[userID]; ok {
		ss.mu.RUnlock()
		return s
	}
	ss.mu.RUnlock()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	// Double-check after acquiring the write lock.
	if s, ok := ss.sessions[userID]; ok {
		return s
	}

	s := &Session{
		UserID:       userID,
		history:      []Turn{},
		maxHistory:   ss.maxHistory,
		CreatedAt:    time.Now(),
		lastActiveAt: time.Now(),
	}
	ss.sessions[userID] = s
	ss.logger.Debug("session created", "user_id", userID)
	return s
}

// Get returns the session for userID, or nil if none exists.
func (ss *SessionStore) Get(userID string) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.sessions[userID]
}

// AppendTurn appends a turn to the user's session, creating it if needed.
func (ss *SessionStore) AppendTurn(userID string, role Role, text string) {
	ss.GetOrCreate(userID).AppendTurn(role, text)
}

// Snapshot returns a consistent copy of the user's history. An unknown
// user yields an empty snapshot.
func (ss *SessionStore) Snapshot(userID string) []Turn {
	s := ss.Get(userID)
	if s == nil {
		return nil
	}
	return s.Snapshot()
}

// Count returns the number of live sessions.
func (ss *SessionStore) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// EvictIfExpired removes the user's session when its inactivity exceeds
// ttl at the instant now. Returns whether an eviction occurred. Activity
// recorded after now is re-read under lock, so a session that became
// active after the caller captured now survives.
func (ss *SessionStore) EvictIfExpired(userID string, now time.Time, ttl time.Duration) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s, ok := ss.sessions[userID]
	if !ok {
		return false
	}
	if now.Sub(s.LastActiveAt()) <= ttl {
		return false
	}
	delete(ss.sessions, userID)
	ss.logger.Debug("session evicted", "user_id", userID)
	return true
}

// Sweep evicts every session whose inactivity exceeds ttl at the instant
// now. Returns the number of evictions. Safe to run concurrently with
// live reads and writes.
func (ss *SessionStore) Sweep(now time.Time, ttl time.Duration) int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	evicted := 0
	for userID, s := range ss.sessions {
		if now.Sub(s.LastActiveAt()) > ttl {
			delete(ss.sessions, userID)
			evicted++
		}
	}
	if evicted > 0 {
		ss.logger.Info("inactive sessions evicted",
			"evicted", evicted,
			"remaining", len(ss.sessions),
		)
	}
	return evicted
}

// StartSweeper runs Sweep on a fixed interval until ctx is cancelled.
func (ss *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = ss.ttl / 2
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ss.Sweep(time.Now(), ss.ttl)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SessionMeta is read-only session metadata for listing.
type SessionMeta struct {
	UserID       string    `json:"user_id"`
	Turns        int       `json:"turns"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ListSessions returns metadata for all live sessions.
func (ss *SessionStore) ListSessions() []SessionMeta {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make([]SessionMeta, 0, len(ss.sessions))
	for _, s := range ss.sessions {
		s.mu.RLock()
		out = append(out, SessionMeta{
			UserID:       s.UserID,
			Turns:        len(s.history),
			CreatedAt:    s.CreatedAt,
			LastActiveAt: s.lastActiveAt,
		})
		s.mu.RUnlock()
	}
	return out
}

// Delete removes a session by user ID. Returns whether it existed.
func (ss *SessionStore) Delete(userID string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.sessions[userID]; !ok {
		return false
	}
	delete(ss.sessions, userID)
	ss.logger.Info("session deleted", "user_id", userID)
	return true
}
