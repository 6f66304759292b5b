// Package timer: a deadline-ordered set of one-shot and recurring
// timers, backed by a container/heap min-heap keyed on (deadline,
// insertion sequence). GetNextTimer tells a caller how long it may block
// before the next deadline; ListExpired drains everything currently due.
// Condition timers add a witness closure that must still return true at
// fire time, standing in for the original's weak_ptr-guarded callback.
package timer
