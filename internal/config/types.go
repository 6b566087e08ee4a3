package config

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a run reports "nothing new".
type Mode string

const (
	// ModeNormal notifies only on a genuinely new disclosure.
	ModeNormal Mode = "normal"
	// ModeTest always sends a status message so operators can see the
	// scheduler is alive.
	ModeTest Mode = "test"
)

// ParseMode accepts "normal" (or empty) and "test"/"diagnostic"/"debug".
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "normal", "quiet":
		return ModeNormal, nil
	case "test", "diagnostic", "debug", "verbose":
		return ModeTest, nil
	default:
		return "", fmt.Errorf("unknown mode %q (use normal or test)", raw)
	}
}

const (
	DefaultDARTBaseURL     = "https://opendart.fss.or.kr/api"
	DefaultTelegramAPIURL  = "https://api.telegram.org"
	DefaultStatePath       = "state.json"
	DefaultRequestTimeout  = 20 * time.Second
	DefaultMaxMessageChars = 4000
)

type Config struct {
	Mode        string            `json:"mode,omitempty"`
	DART        DARTConfig        `json:"dart"`
	Telegram    TelegramConfig    `json:"telegram"`
	Storage     StorageConfig     `json:"storage"`
	Logging     LoggingConfig     `json:"logging"`
	Watch       WatchConfig       `json:"watch"`
	Diagnostics DiagnosticsConfig `json:"diagnostics"`

	// Derived by Validate.
	mode            Mode
	dartTimeout     time.Duration
	telegramTimeout time.Duration
	busyTimeout     time.Duration
}

// DARTConfig points at the OpenDART listing API.
type DARTConfig struct {
	APIKey   string `json:"api_key"`
	CorpCode string `json:"corp_code"`
	BaseURL  string `json:"base_url,omitempty"`
	// Timeout is a Go duration string (e.g. "20s").
	Timeout string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`
	APIURL string `json:"api_url,omitempty"`
	// Timeout is a Go duration string (e.g. "20s").
	Timeout string `json:"timeout,omitempty"`
	// RatePerSec paces multi-part sends (log dumps). Default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls where the last seen receipt number lives.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./state.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// WatchConfig is only used by the in-process daemon.
type WatchConfig struct {
	// Schedule accepts cron ("*/5 * * * *", "@every 5m"), Go durations ("5m")
	// or HH:MM intervals ("00:05").
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Seoul"
}

type DiagnosticsConfig struct {
	// ReportErrors sends a short failure summary to the chat before a run
	// exits with an error. Nil means true.
	ReportErrors *bool `json:"report_errors,omitempty"`
	// IncludeLogs appends the run log to the heartbeat in test mode.
	IncludeLogs bool `json:"include_logs,omitempty"`
	// MaxMessageChars bounds each chunk of a log dump. Default 4000.
	MaxMessageChars int `json:"max_message_chars,omitempty"`
}

// Default returns a Config with every optional field at its default.
func Default() *Config {
	return &Config{
		Mode: string(ModeNormal),
		DART: DARTConfig{
			BaseURL: DefaultDARTBaseURL,
			Timeout: DefaultRequestTimeout.String(),
		},
		Telegram: TelegramConfig{
			APIURL:     DefaultTelegramAPIURL,
			Timeout:    DefaultRequestTimeout.String(),
			RatePerSec: 1,
		},
		Storage: StorageConfig{Driver: "file", Path: DefaultStatePath},
		Logging: LoggingConfig{Level: "info"},
	}
}

func (c *Config) RunMode() Mode {
	if c.mode == "" {
		return ModeNormal
	}
	return c.mode
}

func (c *Config) DARTTimeout() time.Duration     { return orDefault(c.dartTimeout, DefaultRequestTimeout) }
func (c *Config) TelegramTimeout() time.Duration { return orDefault(c.telegramTimeout, DefaultRequestTimeout) }
func (c *Config) BusyTimeout() time.Duration     { return c.busyTimeout }

func (c *Config) ReportErrors() bool {
	return c.Diagnostics.ReportErrors == nil || *c.Diagnostics.ReportErrors
}

func (c *Config) MaxMessageChars() int {
	if c.Diagnostics.MaxMessageChars <= 0 {
		return DefaultMaxMessageChars
	}
	return c.Diagnostics.MaxMessageChars
}

func (c *Config) ConsoleLogging() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
