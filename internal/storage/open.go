package storage

import (
	"context"
	"errors"
	"strings"

	logx "dartwatch/pkg/logx"
)

// Store is the persistence API used by the watcher.
type Store interface {
	// Load returns the zero State when nothing was stored yet. When the
	// stored state is unreadable it returns the zero State and a *CorruptError.
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
