// Package scheduler: M:N fiber scheduler.
//
//	                 ┌─────────────────────────────┐
//	Schedule(task) -->│          task queue          │<-- ScheduleBulk(tasks)
//	                 └──────────────┬──────────────┘
//	                                │ dequeue (skip pinned-elsewhere,
//	                                │          skip already-EXEC fibers)
//	              ┌─────────────────┼─────────────────┐
//	              v                 v                 v
//	        worker 0           worker 1           worker N (caller, optional)
//	     ┌───────────────┐  ┌───────────────┐  ┌───────────────┐
//	     │  runLoop(0)    │  │  runLoop(1)    │  │  runLoop(N)    │
//	     │  idle fiber    │  │  idle fiber    │  │  idle fiber    │
//	     │  cb fiber      │  │  cb fiber      │  │  (runs only    │
//	     │  (reused)      │  │  (reused)      │  │   on Stop)     │
//	     └───────────────┘  └───────────────┘  └───────────────┘
//
// Each worker binds the calling goroutine as its own root fiber (a
// fused root+dispatch context: see pkg/fiber.BindRoot) and loops:
// dequeue a task, Resume it, loop. When no task is available the
// worker resumes a per-worker idle fiber, which blocks on Tickle or a
// short poll interval and then yields to HOLD, handing control back to
// runLoop so it can scan the queue again; once Stopping() holds, the idle
// fiber returns (TERM) and the worker exits.
//
// A scheduler constructed with useCaller reserves one extra worker slot
// for the constructing goroutine. That worker never runs during Start;
// it only drives its fiber, synchronously, inside Stop, draining
// remaining work before Stop returns — the same sequencing the
// scheduler this package is modeled on uses for its root fiber.
//
// Tickle, the per-worker Idle pass, and Stopping are all overridable via
// Hooks, letting a subclass (the canonical case is an I/O reactor) layer
// its own wake and readiness semantics on top of the base dispatch loop
// without touching it.
package scheduler
