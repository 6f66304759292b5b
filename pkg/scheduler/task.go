package scheduler

import "github.com/corelane/fiberrt/pkg/fiber"

// AnyThread is the Task.Thread sentinel meaning "runnable on whichever
// worker dequeues it first".
const AnyThread = -1

// Task is a single scheduler queue entry: either a Fiber handle or a bare
// callback, plus an optional target worker.
type Task struct {
	Fiber    *fiber.Fiber
	Callback func()
	Thread   int
}

func (t Task) empty() bool {
	return t.Fiber == nil && t.Callback == nil
}
