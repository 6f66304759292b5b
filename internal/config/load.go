package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers every Configuration field as a pflag on fs, with
// defaults matching the `default:` struct tags, so cmd/fiberrtd's root
// command can surface them as CLI flags without duplicating the schema.
func BindFlags(fs *pflag.FlagSet) {
	fs.Uint32("fiber.stack-size", 131072, "advisory fiber stack size, bytes")
	fs.Int("scheduler.threads", 4, "scheduler worker goroutine count")
	fs.Bool("scheduler.use-caller", true, "reserve the constructing goroutine as an extra worker")
	fs.String("scheduler.name", "fiberrt", "scheduler name, used in log fields")
	fs.Int("io.max-timeout-ms", 3000, "epoll_wait ceiling, milliseconds")
	fs.Int("io.rollback-threshold-ms", 3600000, "backward clock jump treated as a rollback, milliseconds")
	fs.String("log-format", "dev", "log encoder: dev or json")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
}

// Load builds a Configuration from v, which the caller has already bound
// to flags, environment variables, and/or a config file via viper.
func Load(v *viper.Viper) (*Configuration, error) {
	cfg := NewConfigurationWithOptionsAndDefaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
