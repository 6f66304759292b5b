// Package config defines the configuration structure for fiberrtd, the
// thin CLI harness around the fiberrt runtime.
//
// Configuration is organized into logical sections (Fiber, Scheduler, IO)
// and uses code generation via optgen to create functional option
// helpers.
//
// # Configuration Structure
//
//	Configuration
//	├── Fiber      - fiber stack sizing
//	├── Scheduler  - worker pool shape
//	├── IO         - I/O reactor timing
//	├── LogFormat  - Logging format
//	└── LogLevel   - Logging verbosity
//
// # Fiber Configuration
//
//	┌───────────┬─────────┬────────────────────────────────────────┐
//	│ Field     │ Default │ Description                            │
//	├───────────┼─────────┼────────────────────────────────────────┤
//	│ StackSize │ 131072  │ Advisory fiber stack size, bytes        │
//	└───────────┴─────────┴────────────────────────────────────────┘
//
// # Scheduler Configuration
//
//	┌───────────┬───────────┬────────────────────────────────────────┐
//	│ Field     │ Default   │ Description                            │
//	├───────────┼───────────┼────────────────────────────────────────┤
//	│ Threads   │ 4         │ Worker goroutine count                 │
//	│ UseCaller │ true      │ Reserve the constructing goroutine too │
//	│ Name      │ "fiberrt" │ Scheduler name, used in log fields      │
//	└───────────┴───────────┴────────────────────────────────────────┘
//
// # IO Configuration
//
//	┌─────────────────────┬─────────┬────────────────────────────────────────┐
//	│ Field               │ Default │ Description                            │
//	├─────────────────────┼─────────┼────────────────────────────────────────┤
//	│ MaxTimeoutMs        │ 3000    │ epoll_wait ceiling, milliseconds        │
//	│ RollbackThresholdMs │ 3600000 │ Backward clock jump treated as rollback │
//	└─────────────────────┴─────────┴────────────────────────────────────────┘
//
// # Code Generation
//
// The package uses optgen to generate functional option helpers:
//
//	//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration.go . Configuration Fiber Scheduler IO
//
// Generated helpers include:
//
//   - NewConfigurationWithOptions(...ConfigurationOption) - Create with options
//   - NewConfigurationWithOptionsAndDefaults(...ConfigurationOption) - Create with defaults + options
//   - WithFiber(Fiber), WithScheduler(Scheduler), WithIO(IO) - Set nested structs
//   - DebugMap() - Returns map for debug logging (respects debugmap tags)
//
// # Usage Example
//
//	cfg := config.NewConfigurationWithOptionsAndDefaults(
//	    config.WithScheduler(config.Scheduler{
//	        Threads:   8,
//	        UseCaller: false,
//	    }),
//	    config.WithLogLevel("debug"),
//	)
package config
