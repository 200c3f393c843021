package engine

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPastTime is returned by Schedule when the fire time is not strictly
// in the future.
var ErrPastTime = errors.New("reminder time must be in the future")

// ReminderState is the lifecycle state of a reminder. pending is the only
// non-terminal state: pending→fired on delivery, pending→cancelled on
// cancel, and nothing transitions out of the terminal states.
type ReminderState int

const (
	StatePending ReminderState = iota
	StateFired
	StateCancelled
)

// Reminder is a one-shot deferred notification owned by the scheduler.
type Reminder struct {
	ID      string
	Owner   string
	FireAt  time.Time
	Payload string

	state ReminderState
}

// DeliverFunc performs the push delivery when a reminder fires. A failed
// delivery is logged but the reminder still counts as fired; retrying
// would break the at-most-once guarantee.
type DeliverFunc func(ctx context.Context, owner, payload string) error

// ReminderScheduler schedules and fires one-shot reminders. All pending
// reminders live in a single min-heap drained by one timer loop, so there
// is no goroutine per reminder and cancellation is a state flip under the
// scheduler lock rather than a timer interruption. The check-and-fire is
// atomic: a cancel racing the fire time results in exactly one of
// delivery or cancellation, never both, and never a double delivery.
type ReminderScheduler struct {
	reminders map[string]*Reminder
	queue     reminderQueue

	deliver DeliverFunc
	logger  *slog.Logger

	// wake nudges the loop when the earliest deadline changes.
	wake chan struct{}

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewReminderScheduler creates a scheduler delivering through deliver.
func NewReminderScheduler(deliver DeliverFunc, logger *slog.Logger) *ReminderScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderScheduler{
		reminders: make(map[string]*Reminder),
		deliver:   deliver,
		logger:    logger.With("component", "reminders"),
		wake:      make(chan struct{}, 1),
	}
}

// Start launches the timer loop. It runs until ctx is cancelled.
func (rs *ReminderScheduler) Start(ctx context.Context) {
	rs.ctx, rs.cancel = context.WithCancel(ctx)
	go rs.run()
	rs.logger.Info("reminder scheduler started")
}

// Stop terminates the timer loop. Pending reminders are dropped; the
// engine makes no delivery promises across restarts.
func (rs *ReminderScheduler) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("reminder scheduler stopped")
}

// Schedule registers a one-shot reminder for owner at fireAt and returns
// its ID immediately. Fails with ErrPastTime when fireAt is not strictly
// after the current time.
func (rs *ReminderScheduler) Schedule(owner string, fireAt time.Time, payload string) (string, error) {
	if !fireAt.After(time.Now()) {
		return "", ErrPastTime
	}

	r := &Reminder{
		ID:      uuid.NewString(),
		Owner:   owner,
		FireAt:  fireAt,
		Payload: payload,
		state:   StatePending,
	}

	rs.mu.Lock()
	rs.reminders[r.ID] = r
	heap.Push(&rs.queue, r)
	rs.mu.Unlock()

	rs.logger.Info("reminder scheduled",
		"id", r.ID,
		"owner", owner,
		"fire_at", fireAt.Format(time.RFC3339),
	)
	rs.nudge()
	return r.ID, nil
}

// Cancel flips a pending reminder to cancelled. Returns false when the
// reminder is unknown or no longer pending (already fired or cancelled).
// The heap entry is dropped lazily by the loop.
func (rs *ReminderScheduler) Cancel(id string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	r, ok := rs.reminders[id]
	if !ok || r.state != StatePending {
		return false
	}
	r.state = StateCancelled
	delete(rs.reminders, id)
	rs.logger.Info("reminder cancelled", "id", id, "owner", r.Owner)
	return true
}

// Pending returns copies of the owner's pending reminders, soonest first.
func (rs *ReminderScheduler) Pending(owner string) []Reminder {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var out []Reminder
	for _, r := range rs.queue {
		if r.Owner == owner && r.state == StatePending {
			out = append(out, *r)
		}
	}
	sortRemindersByFireAt(out)
	return out
}

// PendingCount returns the number of pending reminders across all owners.
func (rs *ReminderScheduler) PendingCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.reminders)
}

// nudge wakes the loop without blocking.
func (rs *ReminderScheduler) nudge() {
	select {
	case rs.wake <- struct{}{}:
	default:
	}
}

// run is the single timer loop. It sleeps until the earliest pending
// deadline, pops due entries, and performs the atomic check-and-fire.
func (rs *ReminderScheduler) run() {
	for {
		rs.mu.Lock()
		// Drop stale heap entries (cancelled, or fired via a racing pop).
		for len(rs.queue) > 0 && rs.queue[0].state != StatePending {
			heap.Pop(&rs.queue)
		}

		if len(rs.queue) == 0 {
			rs.mu.Unlock()
			select {
			case <-rs.wake:
				continue
			case <-rs.ctx.Done():
				return
			}
		}

		next := rs.queue[0]
		delay := time.Until(next.FireAt)
		if delay > 0 {
			rs.mu.Unlock()
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-rs.wake:
				timer.Stop()
			case <-rs.ctx.Done():
				timer.Stop()
				return
			}
			continue
		}

		// Due: pop and transition while still holding the lock, so a
		// concurrent Cancel sees either pending (and wins) or fired
		// (and returns false). Delivery happens outside the lock.
		r := heap.Pop(&rs.queue).(*Reminder)
		if r.state != StatePending {
			rs.mu.Unlock()
			continue
		}
		r.state = StateFired
		delete(rs.reminders, r.ID)
		rs.mu.Unlock()

		rs.fire(r)
	}
}

// fire performs the single delivery for a reminder that just transitioned
// to fired.
func (rs *ReminderScheduler) fire(r *Reminder) {
	defer func() {
		if rec := recover(); rec != nil {
			rs.logger.Error("reminder delivery panicked", "id", r.ID, "panic", rec)
		}
	}()

	if rs.deliver == nil {
		rs.logger.Warn("no delivery handler configured", "id", r.ID)
		return
	}
	if err := rs.deliver(rs.ctx, r.Owner, r.Payload); err != nil {
		// Fired stays fired: the delivery attempt is at-most-once.
		rs.logger.Error("reminder delivery failed", "id", r.ID, "owner", r.Owner, "error", err)
		return
	}
	rs.logger.Info("reminder delivered", "id", r.ID, "owner", r.Owner)
}

func sortRemindersByFireAt(rs []Reminder) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].FireAt.Before(rs[j].FireAt) })
}

// reminderQueue is a min-heap of reminders ordered by FireAt.
type reminderQueue []*Reminder

func (q reminderQueue) Len() int           { return len(q) }
func (q reminderQueue) Less(i, j int) bool { return q[i].FireAt.Before(q[j].FireAt) }
func (q reminderQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *reminderQueue) Push(x any)        { *q = append(*q, x.(*Reminder)) }
func (q *reminderQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return r
}
