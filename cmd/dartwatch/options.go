package main

import (
	"strconv"
	"strings"

	pflag "github.com/spf13/pflag"

	"dartwatch/internal/config"
	logx "dartwatch/pkg/logx"
)

// cliOptions are the flags shared by every command. Flags win over the
// environment, which wins over the config file.
type cliOptions struct {
	getenv func(string) string
	flags  *pflag.FlagSet

	configPath    string
	mode          string
	statePath     string
	storageDriver string
	logLevel      string
	includeLogs   bool
	schedule      string
}

func (o *cliOptions) bind(fs *pflag.FlagSet) {
	o.flags = fs
	fs.StringVarP(&o.configPath, "config", "c", "", "config file (.json, .yaml, .toml); default $"+config.EnvConfig)
	fs.StringVar(&o.mode, "mode", "", "run mode: normal or test")
	fs.StringVar(&o.statePath, "state", "", "state file path (default state.json)")
	fs.StringVar(&o.storageDriver, "storage-driver", "", "state storage driver: file or sqlite")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	fs.BoolVar(&o.includeLogs, "include-logs", false, "test mode: send the run log after the heartbeat")
	fs.StringVar(&o.schedule, "schedule", "", "watch: cron, duration or HH:MM interval")
}

// env returns a getenv that lets changed flags shadow their environment
// variables. The config manager re-reads through it on every reload.
func (o *cliOptions) env() func(string) string {
	overrides := map[string]string{}
	set := func(flag, key, val string) {
		if o.flags != nil && o.flags.Changed(flag) {
			overrides[key] = val
		}
	}
	set("mode", config.EnvMode, o.mode)
	set("state", config.EnvStatePath, o.statePath)
	set("storage-driver", config.EnvStorageDriver, o.storageDriver)
	set("log-level", config.EnvLogLevel, o.logLevel)
	set("include-logs", config.EnvIncludeLogs, strconv.FormatBool(o.includeLogs))
	set("schedule", config.EnvSchedule, o.schedule)

	base := o.getenv
	return func(key string) string {
		if v, ok := overrides[key]; ok {
			return v
		}
		return base(key)
	}
}

func (o *cliOptions) path() string {
	if p := strings.TrimSpace(o.configPath); p != "" {
		return p
	}
	return strings.TrimSpace(o.getenv(config.EnvConfig))
}

// logConfig may run before Validate, so it parses the mode itself.
func logConfig(cfg *config.Config) logx.Config {
	mode, _ := config.ParseMode(cfg.Mode)
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		Capture: logx.CaptureConfig{
			Enabled: mode == config.ModeTest && cfg.Diagnostics.IncludeLogs,
		},
	}
}
