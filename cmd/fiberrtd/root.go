package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/corelane/fiberrt/internal/config"
	"github.com/corelane/fiberrt/internal/rtlog"
	"github.com/corelane/fiberrt/pkg/fiber"
	"github.com/corelane/fiberrt/pkg/ioreactor"
)

// newRootCmd builds the fiberrtd root command: a thin demonstration
// harness that loads configuration, constructs a logger, and runs an I/O
// reactor until interrupted. The runtime itself is a library; this
// command exists only so the module ships something runnable.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FIBERRT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "fiberrtd",
		Short: "Run a fiberrt I/O reactor until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			logger := rtlog.MustNew(cfg.LogFormat, cfg.LogLevel)
			defer logger.Sync()
			logger.Info("starting fiberrtd", zap.Any("config", cfg.DebugMap()))

			fiber.SetLogger(logger)

			mgr, err := ioreactor.New(cfg.Scheduler.Threads, cfg.Scheduler.UseCaller, cfg.Scheduler.Name)
			if err != nil {
				return fmt.Errorf("constructing io reactor: %w", err)
			}
			mgr.SetLogger(logger)
			mgr.SetMaxTimeout(time.Duration(cfg.IO.MaxTimeoutMs) * time.Millisecond)
			mgr.SetRollbackThreshold(time.Duration(cfg.IO.RollbackThresholdMs) * time.Millisecond)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mgr.Start()
			var dump strings.Builder
			mgr.Dump(&dump)
			logger.Info("fiberrtd running", zap.String("dump", dump.String()))

			<-ctx.Done()
			logger.Info("shutting down")

			stopped := make(chan struct{})
			go func() {
				mgr.Stop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(10 * time.Second):
				logger.Warn("shutdown timed out waiting for workers")
			}
			return mgr.Close()
		},
	}

	config.BindFlags(cmd.Flags())
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
