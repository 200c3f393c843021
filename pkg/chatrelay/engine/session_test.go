package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSessionAppendTurn(t *testing.T) {
	ss := NewSessionStore(10, time.Hour, nil)

	ss.AppendTurn("U1", RoleUser, "hello")
	ss.AppendTurn("U1", RoleAssistant, "hi there")

	snap := ss.Snapshot("U1")
	if len(snap) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(snap))
	}
	if snap[0].Role != RoleUser || snap[0].Text != "hello" {
		t.Errorf("unexpected first turn: %+v", snap[0])
	}
	if snap[1].Role != RoleAssistant || snap[1].Text != "hi there" {
		t.Errorf("unexpected second turn: %+v", snap[1])
	}
}

func TestSessionHistoryBound(t *testing.T) {
	ss := NewSessionStore(10, time.Hour, nil)

	// 12 turns with N=10: turns 1 and 2 must be gone, 3..12 kept in order.
	for i := 1; i <= 12; i++ {
		ss.AppendTurn("U1", RoleUser, fmt.Sprintf("turn %d", i))
	}

	snap := ss.Snapshot("U1")
	if len(snap) != 10 {
		t.Fatalf("expected history trimmed to 10, got %d", len(snap))
	}
	if snap[0].Text != "turn 3" {
		t.Errorf("expected oldest surviving turn to be 'turn 3', got %q", snap[0].Text)
	}
	if snap[9].Text != "turn 12" {
		t.Errorf("expected newest turn to be 'turn 12', got %q", snap[9].Text)
	}
}

func TestSessionBoundHoldsAfterEveryAppend(t *testing.T) {
	ss := NewSessionStore(3, time.Hour, nil)
	s := ss.GetOrCreate("U1")

	for i := 0; i < 20; i++ {
		s.AppendTurn(RoleUser, "msg")
		if n := s.HistoryLen(); n > 3 {
			t.Fatalf("history exceeded bound after append %d: %d", i, n)
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	ss := NewSessionStore(10, time.Hour, nil)
	ss.AppendTurn("U1", RoleUser, "original")

	snap := ss.Snapshot("U1")
	snap[0].Text = "mutated"

	if ss.Snapshot("U1")[0].Text != "original" {
		t.Error("snapshot mutation leaked into the session history")
	}
}

func TestSnapshotUnknownUser(t *testing.T) {
	ss := NewSessionStore(10, time.Hour, nil)
	if snap := ss.Snapshot("nobody"); len(snap) != 0 {
		t.Errorf("expected empty snapshot for unknown user, got %d turns", len(snap))
	}
}

func TestGetOrCreateIsLazy(t *testing.T) {
	ss := NewSessionStore(10, time.Hour, nil)

	if ss.Count() != 0 {
		t.Fatalf("expected empty store, got %d sessions", ss.Count())
	}
	s1 := ss.GetOrCreate("U1")
	s2 := ss.GetOrCreate("U1")
	if s1 != s2 {
		t.Error("expected the same session instance for repeated access")
	}
	if ss.Count() != 1 {
		t.Errorf("expected 1 session, got %d", ss.Count())
	}
}

func TestEvictIfExpired(t *testing.T) {
	ttl := time.Hour
	ss := NewSessionStore(10, ttl, nil)
	s := ss.GetOrCreate("U1")

	now := time.Now()

	t.Run("not evicted within ttl", func(t *testing.T) {
		if ss.EvictIfExpired("U1", now, ttl) {
			t.Error("fresh session should not be evicted")
		}
	})

	t.Run("not evicted at exactly ttl", func(t *testing.T) {
		s.mu.Lock()
		s.lastActiveAt = now.Add(-ttl)
		s.mu.Unlock()
		if ss.EvictIfExpired("U1", now, ttl) {
			t.Error("eviction requires inactivity strictly greater than ttl")
		}
	})

	t.Run("evicted past ttl", func(t *testing.T) {
		s.mu.Lock()
		s.lastActiveAt = now.Add(-ttl - time.Second)
		s.mu.Unlock()
		if !ss.EvictIfExpired("U1", now, ttl) {
			t.Error("expected eviction past ttl")
		}
		if ss.Get("U1") != nil {
			t.Error("session still present after eviction")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if ss.EvictIfExpired("nobody", now, ttl) {
			t.Error("evicting an unknown user should report false")
		}
	})
}

func TestSweep(t *testing.T) {
	ttl := time.Hour
	ss := NewSessionStore(10, ttl, nil)

	stale := ss.GetOrCreate("stale")
	ss.GetOrCreate("fresh")

	now := time.Now()
	stale.mu.Lock()
	stale.lastActiveAt = now.Add(-2 * ttl)
	stale.mu.Unlock()

	if evicted := ss.Sweep(now, ttl); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if ss.Get("stale") != nil {
		t.Error("stale session survived the sweep")
	}
	if ss.Get("fresh") == nil {
		t.Error("fresh session was evicted")
	}
}

func TestSweepSparesRecentActivity(t *testing.T) {
	ttl := time.Hour
	ss := NewSessionStore(10, ttl, nil)

	s := ss.GetOrCreate("U1")
	s.mu.Lock()
	s.lastActiveAt = time.Now().Add(-2 * ttl)
	s.mu.Unlock()

	// Activity after the sweep's now was captured must prevent eviction.
	now := time.Now().Add(-time.Minute)
	s.AppendTurn(RoleUser, "I'm back")

	if evicted := ss.Sweep(now, ttl); evicted != 0 {
		t.Fatalf("sweep evicted a session that was active after its captured now")
	}
}

func TestSessionStoreConcurrency(t *testing.T) {
	ss := NewSessionStore(1000, time.Hour, nil)

	var wg sync.WaitGroup
	const workers = 50

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("U%d", n%5)
			ss.AppendTurn(user, RoleUser, "msg")
			_ = ss.Snapshot(user)
			_ = ss.ListSessions()
			ss.Sweep(time.Now(), time.Hour)
		}(i)
	}
	wg.Wait()

	if ss.Count() != 5 {
		t.Errorf("expected 5 sessions, got %d", ss.Count())
	}
}

func TestSequentialAppendsPreserveOrder(t *testing.T) {
	ss := NewSessionStore(100, time.Hour, nil)

	for i := 0; i < 50; i++ {
		ss.AppendTurn("U1", RoleUser, fmt.Sprintf("%d", i))
	}
	snap := ss.Snapshot("U1")
	for i, turn := range snap {
		if turn.Text != fmt.Sprintf("%d", i) {
			t.Fatalf("turn %d out of order: got %q", i, turn.Text)
		}
	}
}

func TestDelete(t *testing.T) {
	ss := NewSessionStore(10, time.Hour, nil)
	ss.GetOrCreate("U1")

	if !ss.Delete("U1") {
		t.Error("expected delete to succeed")
	}
	if ss.Delete("U1") {
		t.Error("expected second delete to fail")
	}
}
