package ioreactor_test

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/corelane/fiberrt/pkg/ioreactor"
)

func TestIOReactor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "IOReactor Suite")
}

func newPipe() (r, w *os.File) {
	r, w, err := os.Pipe()
	Expect(err).NotTo(HaveOccurred())
	Expect(unix.SetNonblock(int(r.Fd()), true)).To(Succeed())
	return r, w
}

var _ = Describe("Manager", func() {
	It("wakes a waiting worker when data arrives on an armed fd (S3)", func() {
		m, err := ioreactor.New(1, false, "io-s3")
		Expect(err).NotTo(HaveOccurred())
		m.Start()
		defer func() { m.Stop(); m.Close() }()

		r, w := newPipe()
		defer r.Close()
		defer w.Close()

		fired := make(chan struct{})
		Expect(m.AddEvent(int(r.Fd()), ioreactor.EventRead, func() { close(fired) })).To(Succeed())

		_, err = w.Write([]byte("x"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(fired, time.Second).Should(BeClosed())
	})

	It("triggers a continuation immediately on CancelEvent (S4)", func() {
		m, err := ioreactor.New(1, false, "io-s4")
		Expect(err).NotTo(HaveOccurred())
		m.Start()
		defer func() { m.Stop(); m.Close() }()

		r, w := newPipe()
		defer r.Close()
		defer w.Close()

		fired := make(chan struct{})
		Expect(m.AddEvent(int(r.Fd()), ioreactor.EventRead, func() { close(fired) })).To(Succeed())
		Expect(m.CancelEvent(int(r.Fd()), ioreactor.EventRead)).To(BeTrue())

		Eventually(fired, time.Second).Should(BeClosed())
	})

	It("rejects AddEvent with no callback and no current EXEC fiber", func() {
		m, err := ioreactor.New(1, false, "io-nofiber")
		Expect(err).NotTo(HaveOccurred())
		m.Start()
		defer func() { m.Stop(); m.Close() }()

		r, w := newPipe()
		defer r.Close()
		defer w.Close()

		err = m.AddEvent(int(r.Fd()), ioreactor.EventRead, nil)
		Expect(err).To(HaveOccurred())
	})

	It("disarms without running the continuation on DelEvent", func() {
		m, err := ioreactor.New(1, false, "io-del")
		Expect(err).NotTo(HaveOccurred())
		m.Start()
		defer func() { m.Stop(); m.Close() }()

		r, w := newPipe()
		defer r.Close()
		defer w.Close()

		var hits atomic.Int32
		Expect(m.AddEvent(int(r.Fd()), ioreactor.EventRead, func() { hits.Add(1) })).To(Succeed())
		Expect(m.DelEvent(int(r.Fd()), ioreactor.EventRead)).To(BeTrue())

		_, _ = w.Write([]byte("x"))
		Consistently(func() int32 { return hits.Load() }, 200*time.Millisecond).Should(Equal(int32(0)))
	})

	It("shuts down gracefully with no armed events or timers (S6)", func() {
		m, err := ioreactor.New(2, false, "io-empty")
		Expect(err).NotTo(HaveOccurred())
		m.Start()
		Eventually(m.Stopping, time.Second).Should(BeTrue())
		m.Stop()
		Expect(m.Close()).To(Succeed())
	})

	It("wakes promptly for a short fd event even with a configured short max timeout", func() {
		m, err := ioreactor.New(1, false, "io-maxtimeout")
		Expect(err).NotTo(HaveOccurred())
		m.SetMaxTimeout(10 * time.Millisecond)
		m.SetRollbackThreshold(time.Minute)
		m.Start()
		defer func() { m.Stop(); m.Close() }()

		r, w := newPipe()
		defer r.Close()
		defer w.Close()

		fired := make(chan struct{})
		Expect(m.AddEvent(int(r.Fd()), ioreactor.EventRead, func() { close(fired) })).To(Succeed())
		_, err = w.Write([]byte("x"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(fired, time.Second).Should(BeClosed())
	})

	It("keeps waiting for further work while a timer is outstanding (property 7)", func() {
		m, err := ioreactor.New(1, false, "io-timer")
		Expect(err).NotTo(HaveOccurred())
		m.Start()
		defer func() { m.Stop(); m.Close() }()

		var hits atomic.Int32
		m.AddTimer(20*time.Millisecond, func() { hits.Add(1) }, false)

		Consistently(m.Stopping, 10*time.Millisecond).Should(BeFalse())
		Eventually(func() int32 { return hits.Load() }, time.Second).Should(Equal(int32(1)))
		Eventually(m.Stopping, time.Second).Should(BeTrue())
	})

	It("allows independent read and write continuations on the same fd (property 4)", func() {
		m, err := ioreactor.New(1, false, "io-rw")
		Expect(err).NotTo(HaveOccurred())
		m.Start()
		defer func() { m.Stop(); m.Close() }()

		r, w := newPipe()
		defer r.Close()
		defer w.Close()

		readFired := make(chan struct{})
		writeFired := make(chan struct{})
		Expect(m.AddEvent(int(r.Fd()), ioreactor.EventRead, func() { close(readFired) })).To(Succeed())
		Expect(m.AddEvent(int(w.Fd()), ioreactor.EventWrite, func() { close(writeFired) })).To(Succeed())

		Eventually(writeFired, time.Second).Should(BeClosed())
		_, _ = w.Write([]byte("y"))
		Eventually(readFired, time.Second).Should(BeClosed())
	})
})
