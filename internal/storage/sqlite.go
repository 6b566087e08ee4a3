package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "dartwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const stateKeyLastRcpNo = "last_rcp_no"

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	path string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, path: path}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, stateKeyLastRcpNo).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, &CorruptError{Path: s.path, Err: err}
	}
	if !v.Valid {
		return State{}, nil
	}
	return State{}.WithLast(v.String), nil
}

func (s *sqliteStore) Save(ctx context.Context, st State) error {
	var v any
	if st.LastRcpNo != nil {
		v = *st.LastRcpNo
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		stateKeyLastRcpNo, v,
	)
	if err == nil {
		s.log.Debug("state saved", logx.String("path", s.path), logx.String("last_rcp_no", st.Last()))
	}
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, started_at, mode, stage, rcp_no, notified, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.RunID, r.StartedAt.Format(time.RFC3339Nano), r.Mode, r.Stage,
		nullStr(r.RcpNo), r.Notified, nullStr(r.Error), r.TookMS,
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
