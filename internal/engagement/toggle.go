package engagement

import (
	"sync"

	"github.com/curlos/twitter-2.0-sub000/internal/metrics"
)

// ToggleStatus tracks an optimistic engagement flip through its lifecycle.
type ToggleStatus int

const (
	StatusIdle ToggleStatus = iota
	StatusPending
	StatusConfirmed
	StatusRolledBack
)

// Toggle is the optimistic state machine behind an engagement button:
// Idle -> Pending(desired) -> Confirmed | RolledBack. Engaged() reflects
// the desired state while a flip is pending so the caller can render ahead
// of the write; Rollback reverts to the last confirmed state. The flip is
// a latency accelerant only; the realtime-subscribed relationship list
// remains the source of truth.
type Toggle struct {
	mu        sync.Mutex
	kind      Kind
	status    ToggleStatus
	confirmed bool
	desired   bool
}

func NewToggle(kind Kind, engaged bool) *Toggle {
	return &Toggle{kind: kind, status: StatusIdle, confirmed: engaged}
}

// Begin starts an optimistic flip toward desired. It returns false when a
// flip is already pending or the desired state already holds.
func (t *Toggle) Begin(desired bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusPending || desired == t.confirmed {
		return false
	}
	t.status = StatusPending
	t.desired = desired
	return true
}

// Engaged returns the optimistic view: the pending desired state if a flip
// is in flight, otherwise the last confirmed state.
func (t *Toggle) Engaged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusPending {
		return t.desired
	}
	return t.confirmed
}

// Confirm settles a pending flip: the desired state becomes confirmed.
func (t *Toggle) Confirm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return
	}
	t.status = StatusConfirmed
	t.confirmed = t.desired
}

// Rollback reverts a pending flip after a failed write; Engaged() returns
// to the last confirmed state.
func (t *Toggle) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return
	}
	t.status = StatusRolledBack
	metrics.EngagementRollbacks.WithLabelValues(t.kind.String()).Inc()
}

// Observe reconciles the toggle with an authoritative membership update
// from the realtime-subscribed relationship list.
func (t *Toggle) Observe(engaged bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirmed = engaged
	if t.status == StatusPending && engaged == t.desired {
		t.status = StatusConfirmed
	}
}

// Status returns the current lifecycle state.
func (t *Toggle) Status() ToggleStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
