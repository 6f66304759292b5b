// Package ioreactor implements the epoll-backed I/O manager: a scheduler
// that also waits on file descriptor readiness and timer deadlines,
// resuming whichever fiber (or running whichever callback) was armed for
// the event that became ready. It is grounded on a coroutine-based C++
// iomanager/fd_manager pair, adapted onto golang.org/x/sys/unix's epoll
// and pipe2 bindings in place of direct epoll_create/epoll_ctl/epoll_wait
// syscalls.
package ioreactor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/corelane/fiberrt/pkg/fiber"
	"github.com/corelane/fiberrt/pkg/scheduler"
	"github.com/corelane/fiberrt/pkg/timer"
)

// Event is a readiness bitmask, aliasing the epoll event bits directly so
// callers can pass EPOLLIN/EPOLLOUT without a translation layer.
type Event uint32

const (
	EventNone  Event = 0
	EventRead  Event = unix.EPOLLIN
	EventWrite Event = unix.EPOLLOUT
)

func (e Event) String() string {
	switch e {
	case EventRead:
		return "READ"
	case EventWrite:
		return "WRITE"
	case EventRead | EventWrite:
		return "READ|WRITE"
	default:
		return "NONE"
	}
}

// defaultMaxTimeout is the idle loop's epoll_wait ceiling, spec.md's
// MAX_TIMEOUT. Override per-Manager with SetMaxTimeout.
const defaultMaxTimeout = 3000 * time.Millisecond

// eventContext is one armed continuation for one (fd, event) pair:
// either a fiber to resume or a bare callback to run, on a specific
// scheduler thread.
type eventContext struct {
	scheduler *scheduler.Scheduler
	thread    int
	fiber     *fiber.Fiber
	cb        func()
}

func (c *eventContext) empty() bool { return c.fiber == nil && c.cb == nil }

func (c *eventContext) trigger() {
	if c.empty() {
		return
	}
	if c.fiber != nil {
		c.scheduler.ScheduleFiber(c.fiber, c.thread)
	} else {
		c.scheduler.ScheduleCallback(c.cb, c.thread)
	}
	*c = eventContext{}
}

// fdContext is the per-descriptor record: the armed event mask and one
// independent eventContext slot per event kind, per spec.md section 4.4's
// "a single fd may have independent read and write continuations".
type fdContext struct {
	mu     sync.Mutex
	fd     int
	events Event
	read   eventContext
	write  eventContext
}

func (c *fdContext) contextFor(ev Event) *eventContext {
	switch ev {
	case EventRead:
		return &c.read
	case EventWrite:
		return &c.write
	default:
		return nil
	}
}

// Manager extends Scheduler with epoll-based readiness notification and
// the shared timer set, implementing scheduler.Hooks to fold both into
// the base dispatch loop's Tickle/Idle/Stopping.
type Manager struct {
	*scheduler.Scheduler
	timers     *timer.Manager
	log        *zap.Logger
	maxTimeout time.Duration

	epfd       int
	pipeR      int
	pipeW      int
	pipeActive atomic.Bool

	fdMu sync.RWMutex
	fds  []*fdContext

	pendingEvents atomic.Int64
}

// New constructs a Manager with threadCount workers (one of which is the
// caller's thread when useCaller is true), an epoll instance, and a self-pipe for
// cross-thread wakeup. Transient resource exhaustion during setup
// (EMFILE/ENFILE under load) is retried with bounded backoff rather than
// failing immediately.
func New(threadCount int, useCaller bool, name string) (*Manager, error) {
	m := &Manager{
		Scheduler:  scheduler.New(threadCount, useCaller, name),
		timers:     timer.NewManager(),
		log:        zap.NewNop(),
		maxTimeout: defaultMaxTimeout,
		epfd:       -1,
		pipeR:      -1,
		pipeW:      -1,
	}
	m.Scheduler.SetHooks(m)
	m.timers.SetOnTimerInsertedAtFront(func() { m.Tickle() })

	op := func() (struct{}, error) {
		epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
		if err != nil {
			return struct{}{}, fmt.Errorf("ioreactor: epoll_create1: %w", err)
		}
		fds := make([]int, 2)
		if err := unix.Pipe2(fds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
			unix.Close(epfd)
			return struct{}{}, fmt.Errorf("ioreactor: pipe2: %w", err)
		}
		m.epfd, m.pipeR, m.pipeW = epfd, fds[0], fds[1]
		return struct{}{}, nil
	}
	if _, err := backoff.Retry(context.Background(), op,
		backoff.WithMaxTries(5), backoff.WithBackOff(backoff.NewExponentialBackOff())); err != nil {
		return nil, err
	}

	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, m.pipeR, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(m.pipeR),
	}); err != nil {
		unix.Close(m.epfd)
		unix.Close(m.pipeR)
		unix.Close(m.pipeW)
		return nil, fmt.Errorf("ioreactor: arming self-pipe: %w", err)
	}

	return m, nil
}

// SetLogger installs a structured logger.
func (m *Manager) SetLogger(l *zap.Logger) {
	if l != nil {
		m.log = l
		m.Scheduler.SetLogger(l)
	}
}

// SetMaxTimeout overrides the idle loop's epoll_wait ceiling, matching
// config's io.max_timeout_ms knob.
func (m *Manager) SetMaxTimeout(d time.Duration) { m.maxTimeout = d }

// SetRollbackThreshold overrides the backward clock jump that the
// underlying timer set treats as a rollback, matching config's
// io.rollback_threshold_ms knob.
func (m *Manager) SetRollbackThreshold(d time.Duration) { m.timers.SetRollbackThreshold(d) }

func (m *Manager) contextAt(fd int) *fdContext {
	m.fdMu.RLock()
	if fd < len(m.fds) && m.fds[fd] != nil {
		c := m.fds[fd]
		m.fdMu.RUnlock()
		return c
	}
	m.fdMu.RUnlock()

	m.fdMu.Lock()
	defer m.fdMu.Unlock()
	if fd >= len(m.fds) {
		newCap := fd + 1
		if grown := (len(m.fds) * 3) / 2; grown > newCap {
			newCap = grown
		}
		grown := make([]*fdContext, newCap)
		copy(grown, m.fds)
		m.fds = grown
	}
	if m.fds[fd] == nil {
		m.fds[fd] = &fdContext{fd: fd}
	}
	return m.fds[fd]
}

// AddEvent arms event on fd. If cb is nil, the currently-running fiber is
// captured and resumed when the event fires; otherwise cb runs as a bare
// callback. Returns an error if the epoll_ctl syscall fails, or if cb is
// nil and the calling goroutine has no current EXEC fiber to capture —
// arming with nothing to resume would wedge the fd's pending-event count
// forever, since nothing would ever run to clear it. Mirrors iomanager.cc's
// assertion that the caller holds a valid fiber when no callback is given.
func (m *Manager) AddEvent(fd int, event Event, cb func()) error {
	var f *fiber.Fiber
	if cb == nil {
		f = fiber.Current()
		if f == nil || f.State() != fiber.StateExec {
			return fmt.Errorf("ioreactor: AddEvent fd=%d: no current EXEC fiber to capture", fd)
		}
	}

	fc := m.contextAt(fd)
	fc.mu.Lock()
	defer fc.mu.Unlock()

	op := unix.EPOLL_CTL_MOD
	if fc.events == EventNone {
		op = unix.EPOLL_CTL_ADD
	}
	newMask := fc.events | event
	ee := &unix.EpollEvent{Events: uint32(newMask) | unix.EPOLLET, Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, op, fd, ee); err != nil {
		return fmt.Errorf("ioreactor: epoll_ctl fd=%d: %w", fd, err)
	}

	ctx := fc.contextFor(event)
	ctx.scheduler = m.Scheduler
	ctx.thread = scheduler.AnyThread
	if cb != nil {
		ctx.cb = cb
	} else {
		ctx.fiber = f
	}
	fc.events = newMask
	m.pendingEvents.Add(1)
	return nil
}

// DelEvent disarms event on fd without running its continuation.
func (m *Manager) DelEvent(fd int, event Event) bool {
	return m.removeEvent(fd, event, false)
}

// CancelEvent disarms event on fd and immediately schedules its
// continuation, as if the event had fired.
func (m *Manager) CancelEvent(fd int, event Event) bool {
	return m.removeEvent(fd, event, true)
}

func (m *Manager) removeEvent(fd int, event Event, trigger bool) bool {
	m.fdMu.RLock()
	var fc *fdContext
	if fd < len(m.fds) {
		fc = m.fds[fd]
	}
	m.fdMu.RUnlock()
	if fc == nil {
		return false
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.events&event == 0 {
		return false
	}
	newMask := fc.events &^ event
	m.applyMaskLocked(fc, newMask)

	ctx := fc.contextFor(event)
	if !ctx.empty() {
		m.pendingEvents.Add(-1)
		if trigger {
			ctx.trigger()
		} else {
			*ctx = eventContext{}
		}
	}
	return true
}

// CancelAll disarms every event on fd, triggering each armed
// continuation, matching spec.md's "fd closed while armed" cleanup path.
func (m *Manager) CancelAll(fd int) bool {
	m.fdMu.RLock()
	var fc *fdContext
	if fd < len(m.fds) {
		fc = m.fds[fd]
	}
	m.fdMu.RUnlock()
	if fc == nil {
		return false
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.events == EventNone {
		return false
	}
	unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if !fc.read.empty() {
		m.pendingEvents.Add(-1)
		fc.read.trigger()
	}
	if !fc.write.empty() {
		m.pendingEvents.Add(-1)
		fc.write.trigger()
	}
	fc.events = EventNone
	return true
}

func (m *Manager) applyMaskLocked(fc *fdContext, newMask Event) {
	fc.events = newMask
	if newMask == EventNone {
		unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fc.fd, nil)
		return
	}
	ee := &unix.EpollEvent{Events: uint32(newMask) | unix.EPOLLET, Fd: int32(fc.fd)}
	unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fc.fd, ee)
}

// AddTimer schedules a one-shot or recurring callback through the shared
// TimerManager, tickling the I/O loop if this is now the soonest
// deadline so an in-progress epoll_wait doesn't oversleep it.
func (m *Manager) AddTimer(period time.Duration, cb func(), recurring bool) *timer.Timer {
	return m.timers.Add(period, cb, recurring)
}

// AddConditionTimer is AddTimer guarded by a witness closure checked at
// fire time.
func (m *Manager) AddConditionTimer(period time.Duration, cb func(), witness func() bool, recurring bool) *timer.Timer {
	return m.timers.AddCondition(period, cb, witness, recurring)
}

// Tickle implements scheduler.Hooks: in place of the base wake channel,
// it writes a byte to the self-pipe (unless a previous byte has not yet
// been drained) so a worker blocked in epoll_wait wakes immediately
// regardless of which OS thread it runs on.
func (m *Manager) Tickle() {
	if m.pipeActive.CompareAndSwap(false, true) {
		_, _ = unix.Write(m.pipeW, []byte{1})
	}
}

// Stopping implements scheduler.Hooks: in addition to the base
// condition, an I/O manager must also have no pending fd events and no
// scheduled timers before it is allowed to exit.
func (m *Manager) Stopping() bool {
	return m.pendingEvents.Load() == 0 && !m.timers.HasTimer()
}

// Idle implements scheduler.Hooks: the per-worker idle pass blocks in
// epoll_wait for up to maxTimeout (or less, if a timer is due sooner),
// drains the self-pipe, dispatches expired timers, and schedules the
// continuation for every ready fd event — synthesizing both READ and
// WRITE against the armed mask when EPOLLERR or EPOLLHUP is reported,
// since callers arming only one side still need to observe the error.
func (m *Manager) Idle(workerID int) {
	timeout := m.maxTimeout
	if d, ok := m.timers.GetNextTimer(); ok && d < timeout {
		timeout = d
	}
	if timeout < 0 {
		timeout = 0
	}

	var events [64]unix.EpollEvent
	n, err := unix.EpollWait(m.epfd, events[:], int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return
		}
		m.log.Error("epoll_wait failed", zap.Error(err))
		return
	}

	for _, cb := range m.timers.ListExpired(nil) {
		m.Scheduler.ScheduleCallback(cb, scheduler.AnyThread)
	}

	for i := 0; i < n; i++ {
		ev := events[i]
		fd := int(ev.Fd)
		if fd == m.pipeR {
			m.drainPipe()
			continue
		}
		m.dispatchReady(fd, Event(ev.Events))
	}
}

func (m *Manager) drainPipe() {
	var buf [256]byte
	for {
		_, err := unix.Read(m.pipeR, buf[:])
		if err != nil {
			break
		}
	}
	m.pipeActive.Store(false)
}

func (m *Manager) dispatchReady(fd int, reported Event) {
	m.fdMu.RLock()
	var fc *fdContext
	if fd < len(m.fds) {
		fc = m.fds[fd]
	}
	m.fdMu.RUnlock()
	if fc == nil {
		return
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	triggered := reported & (EventRead | EventWrite)
	if reported&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		triggered |= fc.events
	}
	triggered &= fc.events
	if triggered == EventNone {
		return
	}

	remaining := fc.events &^ triggered
	m.applyMaskLocked(fc, remaining)

	if triggered&EventRead != 0 && !fc.read.empty() {
		m.pendingEvents.Add(-1)
		fc.read.trigger()
	}
	if triggered&EventWrite != 0 && !fc.write.empty() {
		m.pendingEvents.Add(-1)
		fc.write.trigger()
	}
}

// Close releases the epoll instance and self-pipe. Call only after Stop.
func (m *Manager) Close() error {
	unix.Close(m.pipeR)
	unix.Close(m.pipeW)
	return unix.Close(m.epfd)
}
