// Package scheduler implements an M:N work queue: a pool of worker
// goroutines drains a FIFO task queue of fibers and bare callbacks, each
// optionally pinned to a specific worker. It is adapted from a
// channel/goroutine worker-pool-with-futures design into a
// fiber-and-pin-bucket model: the run loop, idle fiber, and
// tickle/stopping extension points are grounded directly on a
// coroutine-based C++ scheduler's run/idle/stopping/tickle behavior.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corelane/fiberrt/internal/gls"
	"github.com/corelane/fiberrt/pkg/fiber"
)

// Hooks lets a component built on top of Scheduler (the canonical example
// being IOManager) override the three virtual extension points: Tickle,
// Idle, and Stopping. A nil Hooks means base behavior.
type Hooks interface {
	// Tickle is called whenever the scheduler wants to wake an idle
	// worker out-of-band (new work arrived, shutdown requested, a
	// pinned task needs a different worker to look).
	Tickle()
	// Idle runs one "pass" of a worker's idle fiber body for the given
	// worker id, before it yields back to the dispatch loop.
	Idle(workerID int)
	// Stopping augments the base stopping condition (shutdown
	// requested, queue empty, no active workers) with a subclass's own
	// condition, ANDed with the base.
	Stopping() bool
}

// Scheduler owns a pool of worker goroutines and a FIFO task queue.
type Scheduler struct {
	name string
	id   uuid.UUID
	log  *zap.Logger

	mu    sync.Mutex
	queue []Task

	threadCount  int
	useCaller    bool
	rootThreadID int
	idleFibers   map[int]*fiber.Fiber
	idleFibersMu sync.Mutex
	wakeCh       chan struct{}

	stoppingFlag atomic.Bool
	started      atomic.Bool
	activeCount  atomic.Int64
	idleCount    atomic.Int64

	wg sync.WaitGroup

	hooks Hooks
}

// New constructs a Scheduler. When useCaller is true, the constructing
// goroutine is reserved as an extra worker (decrementing threadCount by
// one) whose run loop only actually executes when Stop is called — it
// drains remaining work on the calling goroutine before Stop returns,
// rather than running concurrently with the pool workers.
func New(threadCount int, useCaller bool, name string) *Scheduler {
	if threadCount <= 0 {
		threadCount = 1
	}
	if name == "" {
		name = "scheduler"
	}
	s := &Scheduler{
		name:         name,
		id:           uuid.New(),
		log:          zap.NewNop(),
		useCaller:    useCaller,
		rootThreadID: -1,
		idleFibers:   make(map[int]*fiber.Fiber),
		wakeCh:       make(chan struct{}, 1),
	}
	s.stoppingFlag.Store(true) // not yet started

	if useCaller {
		threadCount--
		if threadCount < 0 {
			threadCount = 0
		}
		s.rootThreadID = threadCount
	}
	s.threadCount = threadCount
	return s
}

// SetLogger installs a structured logger; log sites here are diagnostics
// only, never load-bearing.
func (s *Scheduler) SetLogger(l *zap.Logger) {
	if l != nil {
		s.log = l.With(zap.String("scheduler", s.name), zap.String("scheduler_id", s.id.String()))
	}
}

// SetHooks installs the Tickle/Idle/Stopping overrides. Must be called
// before Start.
func (s *Scheduler) SetHooks(h Hooks) { s.hooks = h }

// Name returns the scheduler's configured name.
func (s *Scheduler) Name() string { return s.name }

// RootThreadID returns the worker id reserved for the constructing
// goroutine when useCaller is true, or -1 otherwise.
func (s *Scheduler) RootThreadID() int { return s.rootThreadID }

// ThreadCount returns the number of non-caller pool workers.
func (s *Scheduler) ThreadCount() int { return s.threadCount }

// Start spawns the pool worker goroutines. It does not block, and it does
// not run the caller-reserved worker — that happens inside Stop.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.stoppingFlag.Store(false)
	s.wg.Add(s.threadCount)
	for i := 0; i < s.threadCount; i++ {
		id := i
		go func() {
			defer s.wg.Done()
			s.runLoop(id)
		}()
	}
}

// Schedule enqueues a task, optionally pinned to thread (-1 for any
// worker). It returns true if the queue was empty immediately before this
// push, in which case Schedule has already called Tickle.
func (s *Scheduler) Schedule(t Task, thread int) bool {
	if t.empty() {
		return false
	}
	t.Thread = thread
	s.mu.Lock()
	wasEmpty := len(s.queue) == 0
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	if wasEmpty {
		s.Tickle()
	}
	return wasEmpty
}

// ScheduleFiber is a convenience wrapper over Schedule for a bare Fiber.
func (s *Scheduler) ScheduleFiber(f *fiber.Fiber, thread int) bool {
	return s.Schedule(Task{Fiber: f}, thread)
}

// ScheduleCallback is a convenience wrapper over Schedule for a bare
// callback.
func (s *Scheduler) ScheduleCallback(cb func(), thread int) bool {
	return s.Schedule(Task{Callback: cb}, thread)
}

// ScheduleBulk atomically appends every task in ts under a single lock,
// tickling at most once if any push made the queue non-empty.
func (s *Scheduler) ScheduleBulk(ts []Task) {
	s.mu.Lock()
	wasEmpty := len(s.queue) == 0
	for _, t := range ts {
		if !t.empty() {
			s.queue = append(s.queue, t)
		}
	}
	needTickle := wasEmpty && len(s.queue) > 0
	s.mu.Unlock()
	if needTickle {
		s.Tickle()
	}
}

// Tickle is the base out-of-band wake signal: a non-blocking nudge on an
// internal channel, plus a diagnostic log. It has no notifier-specific
// behavior — that's exactly what IOManager overrides via Hooks.
func (s *Scheduler) Tickle() {
	if s.hooks != nil {
		s.hooks.Tickle()
		return
	}
	s.log.Debug("tickle")
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Stopping reports whether the scheduler is ready to exit: shutdown
// requested, queue empty, and no worker currently active. Subclasses AND
// in their own condition via Hooks.Stopping.
func (s *Scheduler) Stopping() bool {
	base := s.stoppingFlag.Load()
	if base {
		s.mu.Lock()
		empty := len(s.queue) == 0
		s.mu.Unlock()
		base = empty && s.activeCount.Load() == 0
	}
	if !base {
		return false
	}
	if s.hooks != nil {
		return s.hooks.Stopping()
	}
	return true
}

// Stop requests shutdown, wakes every worker, and, for a useCaller
// scheduler, binds the calling goroutine itself as the reserved worker's
// fused root+dispatch fiber and runs its loop synchronously to drain
// remaining work — the same constructing-thread-drains-last sequencing
// as the original's deferred m_rootFiber->call() — before joining every
// pool worker goroutine. Must be called from the same goroutine that
// called New when useCaller is true.
func (s *Scheduler) Stop() {
	s.stoppingFlag.Store(true)
	for i := 0; i < s.threadCount; i++ {
		s.Tickle()
	}
	if s.useCaller {
		s.Tickle()
		if !s.Stopping() {
			root := fiber.BindCallerRoot()
			s.dispatchLoop(s.rootThreadID, root)
			fiber.Unbind()
		}
	}
	s.wg.Wait()
}

// SwitchTo cooperatively moves the calling fiber to a specific worker:
// it reschedules the current fiber pinned to thread and yields to hold,
// resuming (in FIFO order among that worker's other pinned tasks) once
// that worker picks it back up.
func (s *Scheduler) SwitchTo(thread int) {
	f := fiber.Current()
	if f == nil {
		panic("scheduler: SwitchTo called with no current fiber")
	}
	s.ScheduleFiber(f, thread)
	fiber.YieldToHold()
}

// Dump writes a one-line diagnostic summary to w, grounded on
// scheduler.h's dump(std::ostream&).
func (s *Scheduler) Dump(w io.Writer) {
	s.mu.Lock()
	qlen := len(s.queue)
	s.mu.Unlock()
	fmt.Fprintf(w, "[Scheduler name=%s size=%d active=%d idle=%d stopping=%v queued=%d]",
		s.name, s.threadCount, s.activeCount.Load(), s.idleCount.Load(), s.stoppingFlag.Load(), qlen)
}

// runLoop is the body of one worker: it binds thread-local state, lazily
// creates this worker's idle fiber, and repeatedly dequeues and runs
// tasks until Stopping() holds and the idle fiber reaches TERM.
func (s *Scheduler) runLoop(workerID int) {
	root := fiber.BindRoot()
	defer fiber.Unbind()
	s.dispatchLoop(workerID, root)
}

// dispatchLoop is runLoop's body, factored out so Stop can drive the
// reserved caller worker on a root fiber it binds itself
// (fiber.BindCallerRoot) without runLoop double-binding the goroutine.
func (s *Scheduler) dispatchLoop(workerID int, root *fiber.Fiber) {
	slot := gls.Get()
	slot.Scheduler = s
	slot.Dispatch = root

	idleFiber := s.idleFiberFor(workerID)
	var cbFiber *fiber.Fiber

	for {
		task, found, tickleNeeded := s.dequeue(workerID)
		if tickleNeeded {
			s.Tickle()
		}

		switch {
		case found && task.Fiber != nil:
			f := task.Fiber
			if f.State() == fiber.StateTerm || f.State() == fiber.StateExcept {
				s.activeCount.Add(-1)
				continue
			}
			f.Resume()
			s.activeCount.Add(-1)
			if f.State() == fiber.StateReady {
				s.ScheduleFiber(f, AnyThread)
			}

		case found && task.Callback != nil:
			if cbFiber == nil || cbFiber.State() == fiber.StateTerm || cbFiber.State() == fiber.StateExcept {
				if cbFiber == nil {
					cbFiber = fiber.New(task.Callback, 0, false)
				} else {
					cbFiber.Reset(task.Callback)
				}
			} else {
				cbFiber.Reset(task.Callback)
			}
			runFiber := cbFiber
			runFiber.Resume()
			s.activeCount.Add(-1)
			switch runFiber.State() {
			case fiber.StateReady:
				s.ScheduleFiber(runFiber, AnyThread)
				cbFiber = nil
			case fiber.StateTerm, fiber.StateExcept:
				// ready to be reset for the next callback
			default:
				cbFiber = nil
			}

		default:
			if idleFiber.State() == fiber.StateTerm {
				return
			}
			s.idleCount.Add(1)
			idleFiber.Resume()
			s.idleCount.Add(-1)
		}
	}
}

func (s *Scheduler) idleFiberFor(workerID int) *fiber.Fiber {
	s.idleFibersMu.Lock()
	defer s.idleFibersMu.Unlock()
	if f, ok := s.idleFibers[workerID]; ok {
		return f
	}
	f := fiber.New(func() { s.idleBody(workerID) }, 0, false)
	s.idleFibers[workerID] = f
	return f
}

// idleBody is the base idle fiber's loop: wait for a tickle or a short
// poll interval, run the (possibly overridden) per-pass idle work, and
// yield to hold; return (TERM) once Stopping() holds.
func (s *Scheduler) idleBody(workerID int) {
	for !s.Stopping() {
		if s.hooks != nil {
			s.hooks.Idle(workerID)
		} else {
			select {
			case <-s.wakeCh:
			case <-time.After(5 * time.Millisecond):
			}
		}
		fiber.YieldToHold()
	}
}

// dequeue scans the queue front-to-back for the first task runnable on
// workerID (Thread == AnyThread or Thread == workerID), skipping tasks
// pinned elsewhere and fibers already EXEC on another worker without
// removing them. tickleNeeded reports whether a task pinned to another
// worker was skipped or work remains for other workers to pick up;
// skipping an already-EXEC fiber does not by itself set it.
func (s *Scheduler) dequeue(workerID int) (Task, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sawPinnedElsewhere := false
	for i, t := range s.queue {
		if t.Thread != AnyThread && t.Thread != workerID {
			sawPinnedElsewhere = true
			continue
		}
		if t.Fiber != nil && t.Fiber.State() == fiber.StateExec {
			continue
		}
		s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
		s.activeCount.Add(1)
		return t, true, sawPinnedElsewhere || len(s.queue) > 0
	}
	return Task{}, false, sawPinnedElsewhere
}

// RunBlocking is a convenience helper for simple programs: it Starts the
// scheduler, runs fn (typically scheduling initial work), waits for ctx
// to be done, then Stops.
func RunBlocking(ctx context.Context, s *Scheduler, fn func(*Scheduler)) {
	s.Start()
	if fn != nil {
		fn(s)
	}
	<-ctx.Done()
	s.Stop()
}
