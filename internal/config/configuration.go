package config

// Configuration is the root configuration object for fiberrtd. Fields
// carry `default:` tags consumed by github.com/creasty/defaults and
// `debugmap:` tags consumed by the generated DebugMap() in
// zz_generated.configuration.go.
type Configuration struct {
	Fiber     Fiber     `debugmap:"visible"`
	Scheduler Scheduler `debugmap:"visible"`
	IO        IO        `debugmap:"visible"`
	LogFormat string    `default:"dev" debugmap:"visible" mapstructure:"log-format"`
	LogLevel  string    `default:"info" debugmap:"visible" mapstructure:"log-level"`
}

// Fiber configures the runtime's fiber.stack_size knob.
type Fiber struct {
	StackSize uint32 `default:"131072" debugmap:"visible" mapstructure:"stack-size"`
}

// Scheduler configures the pool a Configuration's runtime builds.
type Scheduler struct {
	Threads   int    `default:"4" debugmap:"visible" mapstructure:"threads"`
	UseCaller bool   `default:"true" debugmap:"visible" mapstructure:"use-caller"`
	Name      string `default:"fiberrt" debugmap:"visible" mapstructure:"name"`
}

// IO configures the I/O reactor's idle-loop timing.
type IO struct {
	MaxTimeoutMs        int `default:"3000" debugmap:"visible" mapstructure:"max-timeout-ms"`
	RollbackThresholdMs int `default:"3600000" debugmap:"visible" mapstructure:"rollback-threshold-ms"`
}
