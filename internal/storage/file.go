package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "dartwatch/pkg/logx"
)

// fileStore keeps state in a small JSON file.
//
// Files:
//   - <path>                 ({"last_rcp_no": ...}, pretty-printed)
//   - <prefix>.runs.jsonl    (append-only run journal)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	path     string
	runsPath string
	runsFile *os.File
	closed   bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return &fileStore{
		log:      log,
		path:     path,
		runsPath: base + ".runs.jsonl",
	}, nil
}

func (s *fileStore) Load(ctx context.Context) (State, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, &CorruptError{Path: s.path, Err: err}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, &CorruptError{Path: s.path, Err: err}
	}
	return st, nil
}

// Save overwrites the state file via temp file + rename, so a crash leaves
// either the old or the new content.
func (s *fileStore) Save(ctx context.Context, st State) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Debug("state saved", logx.String("path", s.path), logx.String("last_rcp_no", st.Last()))
	return nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.runsFile == nil {
		f, err := os.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		s.runsFile = f
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.runsFile != nil {
		err := s.runsFile.Close()
		s.runsFile = nil
		return err
	}
	return nil
}
