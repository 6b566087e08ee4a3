package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dartwatch/internal/config"
	"dartwatch/internal/dart"
	"dartwatch/internal/storage"
	"dartwatch/internal/transport/telegram"
	logx "dartwatch/pkg/logx"
)

type BuildOption func(*buildOptions)

type buildOptions struct {
	logs func() string
}

// WithLogs provides the captured run log for test mode dumps.
func WithLogs(fn func() string) BuildOption {
	return func(o *buildOptions) { o.logs = fn }
}

// Build validates cfg and wires the production source, notifier and store.
// A *config.ConfigError means no API was contacted; the failed run is still
// written to the run journal.
func Build(cfg *config.Config, log logx.Logger, opts ...BuildOption) (*Watcher, error) {
	if cfg == nil {
		return nil, &config.ConfigError{Missing: []string{"config"}}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := cfg.Validate(); err != nil {
		journalSetupFailure(cfg, err, log)
		return nil, err
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	src := dart.New(dart.Config{
		BaseURL:  cfg.DART.BaseURL,
		APIKey:   cfg.DART.APIKey,
		CorpCode: cfg.DART.CorpCode,
		Timeout:  cfg.DARTTimeout(),
	}, log.With(logx.String("comp", "dart")))

	tg, err := telegram.New(telegram.Config{
		APIURL:     cfg.Telegram.APIURL,
		Token:      cfg.Telegram.Token,
		ChatID:     cfg.Telegram.ChatID,
		Timeout:    cfg.TelegramTimeout(),
		RatePerSec: cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}

	st, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return New(cfg, Deps{Source: src, Notifier: tg, Store: st, Logs: o.logs}, log)
}

// journalSetupFailure records a run that stopped at env_check. Storage
// settings have usable defaults even when credentials are missing, so the
// journal is reachable; failures here are only logged.
func journalSetupFailure(cfg *config.Config, cause error, log logx.Logger) {
	st, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		log.Warn("run journal unavailable", logx.Err(err))
		return
	}
	defer st.Close()

	rec := storage.RunRecord{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Mode:      string(cfg.RunMode()),
		Stage:     string(StageErrored),
		Error:     cause.Error(),
	}
	if err := st.AppendRun(context.Background(), rec); err != nil {
		log.Warn("run journal append failed", logx.Err(err))
	}
}
