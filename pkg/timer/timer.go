// Package timer implements an ordered, deadline-keyed timer set: the
// building block IOManager layers its epoll wait timeout and periodic
// callbacks on top of. It is grounded on a coroutine-based C++ timer
// heap: a sorted set of timers ordered by (deadline, sequence),
// condition timers guarded by a caller-supplied "still relevant"
// witness, and rollback detection that treats a large backward clock
// jump as "everything due now".
package timer

import (
	"container/heap"
	"math"
	"sync"
	"time"
)

// RollbackThreshold is the default for how far backward the wall clock
// must jump, between two ListExpired passes, before it is
// treated as a system clock rollback rather than ordinary scheduling
// jitter. Override per-Manager with SetRollbackThreshold.
const RollbackThreshold = time.Hour

// Timer is a single scheduled callback. Timers are owned by exactly one
// Manager; obtain one via Manager.Add or Manager.AddCondition.
type Timer struct {
	mgr       *Manager
	deadline  time.Time
	period    time.Duration
	recurring bool
	cb        func()
	witness   func() bool // nil for an unconditional timer
	seq       uint64
	index     int // heap.Interface bookkeeping
	cancelled bool
}

// Cancel removes the timer from its manager. Safe to call more than
// once or after the timer has already fired.
func (t *Timer) Cancel() {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	t.mgr.removeLocked(t)
}

// Refresh pushes the timer's deadline out by its original period from
// now, without changing the period itself. A no-op if already cancelled.
func (t *Timer) Refresh() {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if t.cancelled {
		return
	}
	t.mgr.removeFromHeapLocked(t)
	t.deadline = t.mgr.now().Add(t.period)
	t.mgr.insertLocked(t)
}

// Reset changes the timer's period. If fromNow is true the new deadline
// is now+ms; otherwise it is the start of the timer's current period (its
// deadline minus its old period) plus ms, matching timer.h's reset()
// semantics.
func (t *Timer) Reset(period time.Duration, fromNow bool) {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	if t.cancelled {
		return
	}
	base := t.deadline.Add(-t.period)
	t.mgr.removeFromHeapLocked(t)
	t.period = period
	if fromNow {
		t.deadline = t.mgr.now().Add(period)
	} else {
		t.deadline = base.Add(period)
	}
	t.mgr.insertLocked(t)
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Manager is an ordered set of Timers. It is not itself a clock source:
// callers (typically IOManager's idle loop) call GetNextTimer and
// ListExpired on their own cadence.
type Manager struct {
	mu                     sync.Mutex
	h                      timerHeap
	seq                    uint64
	lastCheck              time.Time
	rollbackThreshold      time.Duration
	onTimerInsertedAtFront func()
	nowFn                  func() time.Time
}

// NewManager constructs an empty Manager with the default rollback
// threshold (RollbackThreshold).
func NewManager() *Manager {
	return &Manager{nowFn: time.Now, rollbackThreshold: RollbackThreshold}
}

// SetRollbackThreshold overrides how far backward the clock must jump
// before detectRolloverLocked treats it as a rollback, matching
// config's io.rollback_threshold_ms knob.
func (m *Manager) SetRollbackThreshold(d time.Duration) {
	m.mu.Lock()
	m.rollbackThreshold = d
	m.mu.Unlock()
}

// SetClock overrides the manager's time source, primarily for testing
// rollback detection deterministically instead of manipulating the
// system clock.
func (m *Manager) SetClock(fn func() time.Time) {
	m.mu.Lock()
	m.nowFn = fn
	m.mu.Unlock()
}

func (m *Manager) now() time.Time {
	if m.nowFn != nil {
		return m.nowFn()
	}
	return time.Now()
}

// SetOnTimerInsertedAtFront installs the hook invoked whenever a new
// timer becomes the soonest deadline in the set. IOManager wires this to
// its Tickle, so an epoll_wait blocked on a stale timeout wakes promptly.
func (m *Manager) SetOnTimerInsertedAtFront(hook func()) {
	m.mu.Lock()
	m.onTimerInsertedAtFront = hook
	m.mu.Unlock()
}

// Add schedules cb to run once after period, or every period if
// recurring is true.
func (m *Manager) Add(period time.Duration, cb func(), recurring bool) *Timer {
	return m.add(period, cb, nil, recurring)
}

// AddCondition is Add, but cb only fires if witness() returns true at
// expiry time. witness stands in for the original's weak_ptr-based
// "is the owner still alive" check: Go has no weak pointers, so callers
// supply an explicit boolean closure (e.g. capturing a *bool set on
// teardown, or checking a context's Err()).
func (m *Manager) AddCondition(period time.Duration, cb func(), witness func() bool, recurring bool) *Timer {
	return m.add(period, cb, witness, recurring)
}

func (m *Manager) add(period time.Duration, cb func(), witness func() bool, recurring bool) *Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &Timer{
		mgr:       m,
		deadline:  m.now().Add(period),
		period:    period,
		recurring: recurring,
		cb:        cb,
		witness:   witness,
		seq:       m.seq,
	}
	m.insertLocked(t)
	return t
}

func (m *Manager) insertLocked(t *Timer) {
	heap.Push(&m.h, t)
	if t.index == 0 && m.onTimerInsertedAtFront != nil {
		m.onTimerInsertedAtFront()
	}
}

func (m *Manager) removeFromHeapLocked(t *Timer) {
	if t.index < 0 || t.index >= len(m.h) || m.h[t.index] != t {
		return
	}
	heap.Remove(&m.h, t.index)
}

func (m *Manager) removeLocked(t *Timer) {
	if t.cancelled {
		return
	}
	t.cancelled = true
	m.removeFromHeapLocked(t)
}

// HasTimer reports whether any timer is currently scheduled.
func (m *Manager) HasTimer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.h) > 0
}

// GetNextTimer returns how long until the soonest timer is due. It
// returns 0 if a timer is already due, and (math.MaxInt64, false) if no
// timer is scheduled at all — callers use the bool to distinguish "wait
// forever" from "wait this long".
func (m *Manager) GetNextTimer() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.h) == 0 {
		return math.MaxInt64, false
	}
	d := m.h[0].deadline.Sub(m.now())
	if d < 0 {
		return 0, true
	}
	return d, true
}

// ListExpired appends every due timer's callback to out, in deadline
// order, and reschedules recurring timers for their next period. Timers
// whose witness now returns false are dropped without their callback
// being appended.
func (m *Manager) ListExpired(out []func()) []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	rolledBack := m.detectRolloverLocked()
	now := m.now()

	var rearm []*Timer
	for len(m.h) > 0 {
		t := m.h[0]
		if !rolledBack && t.deadline.After(now) {
			break
		}
		heap.Pop(&m.h)
		t.cancelled = true

		fire := t.witness == nil || t.witness()
		if fire {
			out = append(out, t.cb)
		}
		if t.recurring {
			t.cancelled = false
			t.deadline = now.Add(t.period)
			rearm = append(rearm, t)
		}
	}
	for _, t := range rearm {
		m.seq++
		t.seq = m.seq
		heap.Push(&m.h, t)
	}
	return out
}

// detectRolloverLocked implements timer.h's clock-rollback defense: if
// the wall clock has jumped backward by more than RollbackThreshold
// since the last check, every timer is treated as expired exactly once.
// Only ListExpired calls this — detection must happen where the
// rollback is actually consumed (timers are flushed), not in
// GetNextTimer, or a rollback occurring between the two calls within
// one idle pass would be silently swallowed. The monotonic clock reading
// is stripped so the comparison sees the wall clock. Caller must hold m.mu.
func (m *Manager) detectRolloverLocked() bool {
	now := m.now().Round(0)
	rolled := false
	if !m.lastCheck.IsZero() && now.Before(m.lastCheck.Add(-m.rollbackThreshold)) {
		rolled = true
	}
	m.lastCheck = now
	return rolled
}
