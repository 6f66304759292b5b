package rtlog_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corelane/fiberrt/internal/rtlog"
)

func TestRtlog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rtlog Suite")
}

var _ = Describe("New", func() {
	It("builds a dev logger without error", func() {
		l, err := rtlog.New("dev", "debug")
		Expect(err).NotTo(HaveOccurred())
		Expect(l).NotTo(BeNil())
	})

	It("builds a json logger without error", func() {
		l, err := rtlog.New("json", "info")
		Expect(err).NotTo(HaveOccurred())
		Expect(l).NotTo(BeNil())
	})

	It("falls back to info on an unrecognized level", func() {
		l, err := rtlog.New("dev", "not-a-level")
		Expect(err).NotTo(HaveOccurred())
		Expect(l).NotTo(BeNil())
	})
})
