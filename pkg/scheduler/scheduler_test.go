package scheduler_test

import (
	"bytes"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corelane/fiberrt/pkg/fiber"
	"github.com/corelane/fiberrt/pkg/scheduler"
)

func TestScheduler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scheduler Suite")
}

var _ = Describe("Scheduler", func() {
	var before int

	BeforeEach(func() {
		before = runtime.NumGoroutine()
	})

	AfterEach(func() {
		Eventually(runtime.NumGoroutine, time.Second, 10*time.Millisecond).Should(BeNumerically("<=", before+2))
	})

	It("runs a self-rescheduling counter task to completion across three workers (S2)", func() {
		s := scheduler.New(3, false, "s2")
		s.Start()

		var remaining atomic.Int32
		remaining.Store(5)
		done := make(chan struct{})

		var task func()
		task = func() {
			if remaining.Add(-1) > 0 {
				s.ScheduleCallback(task, scheduler.AnyThread)
				return
			}
			close(done)
		}
		s.ScheduleCallback(task, scheduler.AnyThread)

		Eventually(done, time.Second).Should(BeClosed())
		Expect(remaining.Load()).To(Equal(int32(0)))
		s.Stop()
	})

	It("preserves FIFO order for tasks pinned to the same worker (property 3, S5)", func() {
		s := scheduler.New(1, true, "s5")

		var mu sync.Mutex
		var order []int

		tasks := make([]scheduler.Task, 0, 10)
		for i := 0; i < 10; i++ {
			i := i
			tasks = append(tasks, scheduler.Task{
				Callback: func() {
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
				},
				Thread: s.RootThreadID(),
			})
		}
		s.ScheduleBulk(tasks)
		s.Start()
		s.Stop()

		mu.Lock()
		defer mu.Unlock()
		Expect(order).To(HaveLen(10))
		for i, v := range order {
			Expect(v).To(Equal(i))
		}
	})

	It("never runs two tasks concurrently on a single-worker scheduler (property 2)", func() {
		s := scheduler.New(1, false, "single")
		s.Start()

		var active atomic.Int32
		var violated atomic.Bool
		var wg sync.WaitGroup
		wg.Add(20)

		for i := 0; i < 20; i++ {
			s.ScheduleCallback(func() {
				defer wg.Done()
				if active.Add(1) > 1 {
					violated.Store(true)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
			}, scheduler.AnyThread)
		}

		wg.Wait()
		Expect(violated.Load()).To(BeFalse())
		s.Stop()
	})

	It("shuts down cleanly with no pending work (S6)", func() {
		s := scheduler.New(2, false, "empty")
		s.Start()
		s.Stop()
		Eventually(s.Stopping, time.Second).Should(BeTrue())
	})

	It("refuses to schedule an empty task", func() {
		s := scheduler.New(1, false, "empty-task")
		s.Start()
		ok := s.Schedule(scheduler.Task{}, scheduler.AnyThread)
		Expect(ok).To(BeFalse())
		s.Stop()
	})

	It("lets a fiber voluntarily yield to ready and be rescheduled (property 6 adjacent)", func() {
		s := scheduler.New(1, false, "yield")
		s.Start()

		var hits atomic.Int32
		f := fiber.New(func() {
			hits.Add(1)
			fiber.YieldToReady()
			hits.Add(1)
		}, 0, false)
		s.ScheduleFiber(f, scheduler.AnyThread)

		Eventually(func() int32 { return hits.Load() }, time.Second).Should(Equal(int32(2)))
		s.Stop()
	})

	It("reports a dump summary without panicking", func() {
		s := scheduler.New(2, false, "dump")
		s.Start()
		var buf bytes.Buffer
		s.Dump(&buf)
		Expect(buf.String()).To(ContainSubstring("dump"))
		s.Stop()
	})
})
