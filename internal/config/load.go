package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Environment variable names. The first four match the variables existing
// deployments already export.
const (
	EnvDARTAPIKey     = "DART_API_KEY"
	EnvDARTCorpCode   = "DART_CORP_CODE"
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"

	EnvConfig        = "DARTWATCH_CONFIG"
	EnvMode          = "DARTWATCH_MODE"
	EnvStatePath     = "DARTWATCH_STATE_PATH"
	EnvStorageDriver = "DARTWATCH_STORAGE_DRIVER"
	EnvLogLevel      = "DARTWATCH_LOG_LEVEL"
	EnvSchedule      = "DARTWATCH_SCHEDULE"
	EnvIncludeLogs   = "DARTWATCH_INCLUDE_LOGS"
)

// Load builds a Config from defaults, the optional file at path, then the
// environment (getenv may be nil for os.Getenv). It does not validate.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s config: %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing data")
		}
		return err
	}
	return nil
}

// ApplyEnv overlays non-empty environment variables on cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(EnvDARTAPIKey, &cfg.DART.APIKey)
	set(EnvDARTCorpCode, &cfg.DART.CorpCode)
	set(EnvTelegramToken, &cfg.Telegram.Token)
	set(EnvTelegramChatID, &cfg.Telegram.ChatID)
	set(EnvMode, &cfg.Mode)
	set(EnvStatePath, &cfg.Storage.Path)
	set(EnvStorageDriver, &cfg.Storage.Driver)
	set(EnvLogLevel, &cfg.Logging.Level)
	set(EnvSchedule, &cfg.Watch.Schedule)

	if v := strings.TrimSpace(getenv(EnvIncludeLogs)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid bool %q", EnvIncludeLogs, v)
		}
		cfg.Diagnostics.IncludeLogs = b
	}
	return nil
}
