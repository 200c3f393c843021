package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collector is a DeliverFunc that records every delivery.
type collector struct {
	mu         sync.Mutex
	deliveries []string
}

func (c *collector) deliver(_ context.Context, owner, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, owner+"|"+payload)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}

func startScheduler(t *testing.T, deliver DeliverFunc) *ReminderScheduler {
	t.Helper()
	rs := NewReminderScheduler(deliver, nil)
	ctx, cancel := context.WithCancel(context.Background())
	rs.Start(ctx)
	t.Cleanup(func() {
		cancel()
		rs.Stop()
	})
	return rs
}

func TestSchedulePastTime(t *testing.T) {
	rs := startScheduler(t, (&collector{}).deliver)

	if _, err := rs.Schedule("U1", time.Now().Add(-time.Second), "late"); !errors.Is(err, ErrPastTime) {
		t.Errorf("expected ErrPastTime for past fire time, got %v", err)
	}
	if _, err := rs.Schedule("U1", time.Now(), "now"); !errors.Is(err, ErrPastTime) {
		t.Errorf("expected ErrPastTime for non-future fire time, got %v", err)
	}
}

func TestScheduleFiresExactlyOnce(t *testing.T) {
	c := &collector{}
	rs := startScheduler(t, c.deliver)

	id, err := rs.Schedule("U1", time.Now().Add(50*time.Millisecond), "drink water")
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty reminder id")
	}

	time.Sleep(300 * time.Millisecond)

	if got := c.count(); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
	c.mu.Lock()
	delivered := c.deliveries[0]
	c.mu.Unlock()
	if delivered != "U1|drink water" {
		t.Errorf("unexpected delivery %q", delivered)
	}

	// Fired reminders are garbage-collected and cannot be cancelled.
	if rs.Cancel(id) {
		t.Error("cancel after firing must return false")
	}
	if rs.PendingCount() != 0 {
		t.Errorf("expected no pending reminders, got %d", rs.PendingCount())
	}
}

func TestCancelPreventsDelivery(t *testing.T) {
	c := &collector{}
	rs := startScheduler(t, c.deliver)

	id, err := rs.Schedule("U1", time.Now().Add(150*time.Millisecond), "never mind")
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if !rs.Cancel(id) {
		t.Fatal("cancel of a pending reminder should succeed")
	}
	if rs.Cancel(id) {
		t.Error("second cancel must return false")
	}

	time.Sleep(300 * time.Millisecond)

	if got := c.count(); got != 0 {
		t.Errorf("cancelled reminder was delivered %d times", got)
	}
}

func TestCancelUnknownID(t *testing.T) {
	rs := startScheduler(t, (&collector{}).deliver)
	if rs.Cancel("no-such-id") {
		t.Error("cancel of an unknown id must return false")
	}
}

func TestFiringOrder(t *testing.T) {
	c := &collector{}
	rs := startScheduler(t, c.deliver)

	now := time.Now()
	// Scheduled out of order; must fire soonest-first.
	rs.Schedule("U1", now.Add(120*time.Millisecond), "second")
	rs.Schedule("U1", now.Add(60*time.Millisecond), "first")

	time.Sleep(400 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(c.deliveries))
	}
	if c.deliveries[0] != "U1|first" || c.deliveries[1] != "U1|second" {
		t.Errorf("deliveries out of order: %v", c.deliveries)
	}
}

func TestPendingListing(t *testing.T) {
	rs := startScheduler(t, (&collector{}).deliver)

	now := time.Now()
	rs.Schedule("U1", now.Add(time.Hour), "later")
	rs.Schedule("U1", now.Add(time.Minute), "sooner")
	rs.Schedule("U2", now.Add(time.Minute), "other user")

	pending := rs.Pending("U1")
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending reminders for U1, got %d", len(pending))
	}
	if pending[0].Payload != "sooner" || pending[1].Payload != "later" {
		t.Errorf("pending not sorted soonest-first: %+v", pending)
	}
}

func TestCancelFireRace(t *testing.T) {
	var delivered int32
	rs := startScheduler(t, func(_ context.Context, _, _ string) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	const n = 50
	ids := make([]string, 0, n)
	fireAt := time.Now().Add(40 * time.Millisecond)
	for i := 0; i < n; i++ {
		id, err := rs.Schedule("U1", fireAt, "race")
		if err != nil {
			t.Fatalf("schedule %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	// Cancel concurrently around the fire time; each reminder must end up
	// either cancelled or delivered, never both, never twice.
	var cancelled int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			time.Sleep(30 * time.Millisecond)
			if rs.Cancel(id) {
				atomic.AddInt32(&cancelled, 1)
			}
		}(id)
	}
	wg.Wait()
	time.Sleep(300 * time.Millisecond)

	total := atomic.LoadInt32(&delivered) + atomic.LoadInt32(&cancelled)
	if total != n {
		t.Errorf("delivered (%d) + cancelled (%d) = %d, want %d",
			delivered, cancelled, total, n)
	}
}

func TestDeliveryFailureDoesNotRedeliver(t *testing.T) {
	var attempts int32
	rs := startScheduler(t, func(_ context.Context, _, _ string) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("push unavailable")
	})

	rs.Schedule("U1", time.Now().Add(40*time.Millisecond), "flaky")
	time.Sleep(300 * time.Millisecond)

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected a single delivery attempt, got %d", got)
	}
	if rs.PendingCount() != 0 {
		t.Error("failed delivery must not leave the reminder pending")
	}
}

func TestScheduleIDsUniqueAndCancelable(t *testing.T) {
	rs := startScheduler(t, (&collector{}).deliver)

	const n = 200
	ids := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id, err := rs.Schedule("U1", time.Now().Add(time.Hour), "payload")
		if err != nil {
			t.Fatalf("schedule failed: %v", err)
		}
		if ids[id] {
			t.Fatalf("duplicate reminder id %q", id)
		}
		ids[id] = true
	}
	if rs.PendingCount() != n {
		t.Fatalf("expected %d pending reminders, got %d", n, rs.PendingCount())
	}
	// Every id addresses its own entry.
	for id := range ids {
		if !rs.Cancel(id) {
			t.Fatalf("reminder %q not cancelable", id)
		}
	}
	if rs.PendingCount() != 0 {
		t.Errorf("expected no pending reminders after cancel, got %d", rs.PendingCount())
	}
}
