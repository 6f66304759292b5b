package config_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corelane/fiberrt/internal/config"
)

func TestConfiguration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Configuration Suite")
}

var _ = Describe("Configuration", func() {
	It("applies struct-tag defaults", func() {
		cfg := config.NewConfigurationWithOptionsAndDefaults()
		Expect(cfg.Fiber.StackSize).To(Equal(uint32(131072)))
		Expect(cfg.Scheduler.Threads).To(Equal(4))
		Expect(cfg.Scheduler.UseCaller).To(BeTrue())
		Expect(cfg.IO.MaxTimeoutMs).To(Equal(3000))
		Expect(cfg.LogFormat).To(Equal("dev"))
	})

	It("applies options over defaults", func() {
		cfg := config.NewConfigurationWithOptionsAndDefaults(
			config.WithScheduler(config.Scheduler{Threads: 8, UseCaller: false, Name: "custom"}),
			config.WithLogLevel("debug"),
		)
		Expect(cfg.Scheduler.Threads).To(Equal(8))
		Expect(cfg.Scheduler.UseCaller).To(BeFalse())
		Expect(cfg.LogLevel).To(Equal("debug"))
	})

	It("produces a debug map with every visible field", func() {
		cfg := config.NewConfigurationWithOptionsAndDefaults()
		m := cfg.DebugMap()
		Expect(m).To(HaveKey("Fiber"))
		Expect(m).To(HaveKey("Scheduler"))
		Expect(m).To(HaveKey("IO"))
	})
})
