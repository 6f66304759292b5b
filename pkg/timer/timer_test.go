package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corelane/fiberrt/pkg/timer"
)

func TestTimer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Timer Suite")
}

var _ = Describe("Manager", func() {
	It("reports no next timer when empty", func() {
		m := timer.NewManager()
		Expect(m.HasTimer()).To(BeFalse())
		_, ok := m.GetNextTimer()
		Expect(ok).To(BeFalse())
	})

	It("fires a one-shot timer and removes it (S4 adjacent)", func() {
		m := timer.NewManager()
		var fired atomic.Bool
		m.Add(0, func() { fired.Store(true) }, false)

		Eventually(func() bool {
			out := m.ListExpired(nil)
			for _, cb := range out {
				cb()
			}
			return fired.Load()
		}, time.Second, time.Millisecond).Should(BeTrue())
		Expect(m.HasTimer()).To(BeFalse())
	})

	It("reschedules a recurring timer after each firing", func() {
		m := timer.NewManager()
		var hits atomic.Int32
		tm := m.Add(2*time.Millisecond, func() { hits.Add(1) }, true)
		defer tm.Cancel()

		Eventually(func() int32 {
			for _, cb := range m.ListExpired(nil) {
				cb()
			}
			return hits.Load()
		}, time.Second, time.Millisecond).Should(BeNumerically(">=", int32(2)))
		Expect(m.HasTimer()).To(BeTrue())
	})

	It("skips a condition timer whose witness has gone false", func() {
		m := timer.NewManager()
		alive := false
		var hits atomic.Int32
		m.AddCondition(0, func() { hits.Add(1) }, func() bool { return alive }, false)

		for _, cb := range m.ListExpired(nil) {
			cb()
		}
		Expect(hits.Load()).To(Equal(int32(0)))
		alive = true

		m2 := timer.NewManager()
		m2.AddCondition(0, func() { hits.Add(1) }, func() bool { return alive }, false)
		for _, cb := range m2.ListExpired(nil) {
			cb()
		}
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("cancels a pending timer before it fires", func() {
		m := timer.NewManager()
		var fired atomic.Bool
		tm := m.Add(time.Hour, func() { fired.Store(true) }, false)
		tm.Cancel()
		Expect(m.HasTimer()).To(BeFalse())
	})

	It("invokes the insert-at-front hook when a new soonest timer arrives", func() {
		m := timer.NewManager()
		var hookCalls atomic.Int32
		m.SetOnTimerInsertedAtFront(func() { hookCalls.Add(1) })

		m.Add(time.Hour, func() {}, false)
		Expect(hookCalls.Load()).To(Equal(int32(1)))

		m.Add(time.Minute, func() {}, false)
		Expect(hookCalls.Load()).To(Equal(int32(2)))

		m.Add(2*time.Hour, func() {}, false)
		Expect(hookCalls.Load()).To(Equal(int32(2)))
	})

	It("honors a configured rollback threshold narrower than the default", func() {
		m := timer.NewManager()
		m.SetRollbackThreshold(time.Minute)
		base := time.Now()
		m.SetClock(func() time.Time { return base })

		m.Add(time.Hour, func() {}, false)
		Expect(m.ListExpired(nil)).To(BeEmpty())

		m.SetClock(func() time.Time { return base.Add(-2 * time.Minute) })
		Expect(m.ListExpired(nil)).To(HaveLen(1))
	})

	It("treats a large backward clock jump as expiring every timer once (property 5, rollback)", func() {
		m := timer.NewManager()
		base := time.Now()
		m.SetClock(func() time.Time { return base })

		var hits atomic.Int32
		m.Add(time.Hour, func() { hits.Add(1) }, false)
		Expect(m.ListExpired(nil)).To(BeEmpty())

		m.SetClock(func() time.Time { return base.Add(-2 * time.Hour) })
		out := m.ListExpired(nil)
		for _, cb := range out {
			hits.Add(0)
			cb()
		}
		Expect(out).To(HaveLen(1))
	})

	It("maintains deadline ordering across mixed insertions (property 5, monotonicity)", func() {
		m := timer.NewManager()
		var order []int
		m.Add(30*time.Millisecond, func() { order = append(order, 3) }, false)
		m.Add(10*time.Millisecond, func() { order = append(order, 1) }, false)
		m.Add(20*time.Millisecond, func() { order = append(order, 2) }, false)

		Eventually(func() []int {
			for _, cb := range m.ListExpired(nil) {
				cb()
			}
			return order
		}, time.Second, time.Millisecond).Should(Equal([]int{1, 2, 3}))
	})
})
