// Package fiber implements stackful, cooperatively-scheduled coroutines.
//
// A Fiber owns an entry callback and, once first resumed, a dedicated
// goroutine that runs it. Control transfers between a Fiber and whichever
// goroutine last called Resume via a pair of unbuffered rendezvous
// channels: Resume blocks its caller until the fiber yields or
// terminates, and Yield* blocks the fiber's goroutine until it is next
// resumed. Exactly one side of that handshake is ever runnable, which is
// what gives a Fiber the "at most one thread observes it EXEC" property
// real stackful coroutines get from a save/restore-machine-context
// primitive (ucontext, Boost.Context, an OS fiber). This package uses a
// goroutine plus a channel handshake as that primitive's Go-idiomatic
// stand-in; see DESIGN.md for why.
package fiber

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/corelane/fiberrt/internal/gls"
)

// DefaultStackSize is the fiber stack size used when none is configured.
const DefaultStackSize = 131072

// State is a Fiber's lifecycle state.
type State int32

const (
	StateInit State = iota
	StateReady
	StateExec
	StateHold
	StateTerm
	StateExcept
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateExec:
		return "EXEC"
	case StateHold:
		return "HOLD"
	case StateTerm:
		return "TERM"
	case StateExcept:
		return "EXCEPT"
	default:
		return "UNKNOWN"
	}
}

var (
	idCounter atomic.Uint64
	liveCount atomic.Int64
	logger    = zap.NewNop()
)

// SetLogger installs the logger used for panic/backtrace diagnostics.
// Safe to call once during process bootstrap; log sites are never
// load-bearing for correctness.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

// Fiber is a stackful coroutine: an entry callback plus the machinery to
// suspend and resume it cooperatively.
type Fiber struct {
	id          uint64
	name        string
	stackSize   uint32
	runInCaller bool

	mu      sync.Mutex
	fn      func()
	started bool

	state     atomic.Int32
	resumeCh  chan struct{}
	yieldCh   chan struct{}
	panicInfo any
}

// New allocates a Fiber around cb. stackSize is advisory: unlike the
// ucontext-based original, this implementation runs fibers on ordinary
// (growable) goroutine stacks, so stackSize is carried only to preserve
// the API and is available to callers who want to reason about budgeting.
// runInCaller marks this fiber as one that, when constructed by a
// use_caller scheduler, participates in the fused root/dispatch fiber for
// the constructing thread; see pkg/scheduler.
func New(cb func(), stackSize uint32, runInCaller bool) *Fiber {
	if stackSize == 0 {
		stackSize = DefaultStackSize
	}
	f := &Fiber{
		id:          idCounter.Add(1),
		stackSize:   stackSize,
		runInCaller: runInCaller,
		fn:          cb,
		resumeCh:    make(chan struct{}),
		yieldCh:     make(chan struct{}),
	}
	f.state.Store(int32(StateInit))
	liveCount.Add(1)
	return f
}

// ID returns the fiber's process-wide unique id.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// StackSize returns the stack size this fiber was configured with.
func (f *Fiber) StackSize() uint32 { return f.stackSize }

// RunInCaller reports whether this fiber was created to run fused with
// its constructing thread's root context.
func (f *Fiber) RunInCaller() bool { return f.runInCaller }

// SetName attaches a debug name, surfaced in log fields.
func (f *Fiber) SetName(name string) { f.name = name }

func (f *Fiber) logFields() []zap.Field {
	return []zap.Field{zap.Uint64("fiber_id", f.id), zap.String("fiber_name", f.name)}
}

// Resume transfers control to the fiber, blocking the calling goroutine
// until the fiber yields (HOLD/READY) or reaches a terminal state
// (TERM/EXCEPT). Precondition: State() != EXEC and != TERM/EXCEPT unless
// the fiber has just been Reset. Violating the precondition is a
// programmer error and panics rather than returning an error.
func (f *Fiber) Resume() {
	f.mu.Lock()
	st := State(f.state.Load())
	switch st {
	case StateExec:
		f.mu.Unlock()
		panic(fmt.Sprintf("fiber %d: Resume called while already EXEC", f.id))
	case StateTerm, StateExcept:
		f.mu.Unlock()
		panic(fmt.Sprintf("fiber %d: Resume called on a terminal fiber; Reset it first", f.id))
	}

	f.state.Store(int32(StateExec))
	started := f.started
	if !started {
		f.started = true
	}
	f.mu.Unlock()

	if !started {
		go f.trampoline()
	} else {
		f.resumeCh <- struct{}{}
	}
	<-f.yieldCh
}

// trampoline is the fiber's dedicated goroutine body. It runs once per
// Fiber lifetime (from the first Resume to the terminal transition);
// intermediate yields park it on resumeCh rather than re-entering here.
// Since this goroutine's id is never reused by another fiber, its gls
// slot is released on the way out so the map doesn't grow unbounded
// across the life of a long-running scheduler.
func (f *Fiber) trampoline() {
	gls.Get().Fiber = f

	defer func() {
		defer gls.Release()
		if r := recover(); r != nil {
			f.panicInfo = r
			f.state.Store(int32(StateExcept))
			logger.Error("fiber panicked",
				append(f.logFields(), zap.Any("panic", r), zap.String("stack", string(debug.Stack())))...)
			liveCount.Add(-1)
		}
		f.yieldCh <- struct{}{}
	}()

	f.fn()

	if State(f.state.Load()) == StateExec {
		f.state.Store(int32(StateTerm))
		liveCount.Add(-1)
	}
}

// Reset reinitializes a terminal or never-started fiber with a new entry
// callback. Precondition: State() is INIT, TERM, or EXCEPT.
func (f *Fiber) Reset(cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := State(f.state.Load())
	switch prev {
	case StateInit, StateTerm, StateExcept:
	default:
		panic(fmt.Sprintf("fiber %d: Reset precondition violated, state=%s", f.id, f.State()))
	}
	f.fn = cb
	f.started = false
	f.panicInfo = nil
	f.resumeCh = make(chan struct{})
	f.yieldCh = make(chan struct{})
	f.state.Store(int32(StateInit))
	if prev == StateTerm || prev == StateExcept {
		// the terminal transition decremented liveCount; resetting to
		// INIT makes this fiber live again.
		liveCount.Add(1)
	}
}

// Close validates that a fiber has reached a terminal (or never-started)
// state before being discarded. It is a diagnostic, not a resource
// release: Go's garbage collector reclaims the Fiber itself.
func (f *Fiber) Close() error {
	switch f.State() {
	case StateInit, StateTerm, StateExcept:
		return nil
	default:
		return fmt.Errorf("fiber %d: closed while in state %s", f.id, f.State())
	}
}

// bindRoot marks the calling goroutine as hosting a synthetic root fiber
// — the thread's original execution context, or the fused dispatch fiber
// of a scheduler worker. It never gets its own trampoline goroutine: the
// calling goroutine's ordinary control flow IS its body.
func bindRoot(runInCaller bool) *Fiber {
	f := &Fiber{
		id:          idCounter.Add(1),
		runInCaller: runInCaller,
		started:     true,
	}
	f.state.Store(int32(StateExec))
	gls.Get().Fiber = f
	liveCount.Add(1)
	return f
}

// BindRoot binds the calling goroutine to a fresh root fiber and returns
// it. Scheduler worker run-loops call this once at entry.
func BindRoot() *Fiber { return bindRoot(false) }

// BindCallerRoot is BindRoot for a use_caller scheduler's constructing
// thread: the returned fiber is the target a fused dispatch fiber yields
// back to when the scheduler stops.
func BindCallerRoot() *Fiber { return bindRoot(true) }

// Unbind clears the calling goroutine's current-fiber binding. Worker
// run-loops call this on exit so a reused goroutine id cannot inherit
// stale state.
func Unbind() { gls.Release() }

// Current returns the fiber currently EXEC on the calling goroutine, or
// nil if none is bound (e.g. a goroutine that never called BindRoot and
// is not itself inside a Fiber's trampoline).
func Current() *Fiber {
	f, _ := gls.Get().Fiber.(*Fiber)
	return f
}

// YieldToHold suspends the calling fiber, setting its state to HOLD, and
// returns control to whichever goroutine is blocked in its Resume call.
// It blocks until the fiber is next Resumed. Precondition: the calling
// goroutine has a current fiber in EXEC state.
func YieldToHold() { yieldTo(StateHold) }

// YieldToReady is YieldToHold but leaves the fiber in READY instead of
// HOLD, signaling to a scheduler that it should be immediately
// re-enqueued rather than waiting on an external event.
func YieldToReady() { yieldTo(StateReady) }

func yieldTo(next State) {
	f := Current()
	if f == nil || State(f.state.Load()) != StateExec {
		panic("fiber: Yield called with no current EXEC fiber")
	}
	f.state.Store(int32(next))
	f.yieldCh <- struct{}{}
	<-f.resumeCh
}

// TotalCount returns the number of fibers that have been created and not
// yet reached a terminal state.
func TotalCount() int64 { return liveCount.Load() }
