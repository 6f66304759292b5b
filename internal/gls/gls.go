// Package gls provides goroutine-local storage.
//
// The runtime's fiber and scheduler packages both need a notion of
// "the current thread's active X" (current fiber, current scheduler,
// current dispatch fiber) without threading an explicit handle through
// every call site — the same shape as C++ thread_local in the original
// implementation this runtime is modeled on. Go has no goroutine-local
// storage in the standard library, so this package supplies the minimal
// substitute: a map keyed by the calling goroutine's id, parsed out of
// its own stack trace. Every worker goroutine in this runtime is
// long-lived and 1:1 with exactly one logical worker thread, so
// the lookup happens once per dispatch, not on a hot path.
package gls

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Slot holds the per-goroutine values the runtime needs to recover
// without explicit parameter passing. Fields are stored as interface{}
// to avoid an import cycle between the fiber and scheduler packages;
// callers type-assert back to their concrete type.
type Slot struct {
	Fiber     interface{} // *fiber.Fiber
	Scheduler interface{} // *scheduler.Scheduler
	Dispatch  interface{} // *fiber.Fiber, the worker's dispatch fiber
}

var (
	mu    sync.Mutex
	slots = make(map[uint64]*Slot)
)

// Get returns (creating if necessary) the Slot for the calling goroutine.
func Get() *Slot {
	id := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	s, ok := slots[id]
	if !ok {
		s = &Slot{}
		slots[id] = s
	}
	return s
}

// Release removes the calling goroutine's Slot. Worker run-loops call
// this on exit so a terminated worker's goroutine id cannot leak its
// Slot, or worse, be reused by a future goroutine that inherits stale
// state under id reuse.
func Release() {
	id := goroutineID()
	mu.Lock()
	delete(slots, id)
	mu.Unlock()
}

// goroutineID extracts the numeric id Go prints at the head of
// runtime.Stack output ("goroutine 123 [running]:"). This is the
// standard trick used across the ecosystem (e.g. petermattis/goid) in
// the absence of an exported runtime.Goid.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
