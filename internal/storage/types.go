package storage

import (
	"errors"
	"fmt"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON state file at Path (default)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the persisted record. A nil LastRcpNo means nothing has been
// announced yet.
type State struct {
	LastRcpNo *string `json:"last_rcp_no"`
}

// Last returns the stored receipt number or "".
func (s State) Last() string {
	if s.LastRcpNo == nil {
		return ""
	}
	return *s.LastRcpNo
}

// Seen reports whether rcpNo is the stored receipt number.
func (s State) Seen(rcpNo string) bool {
	return s.LastRcpNo != nil && *s.LastRcpNo == rcpNo
}

// WithLast returns a copy pointing at rcpNo.
func (s State) WithLast(rcpNo string) State {
	v := rcpNo
	s.LastRcpNo = &v
	return s
}

// RunRecord is one line of the run journal.
// Keep it compact and schema-stable.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Mode      string    `json:"mode"`
	Stage     string    `json:"stage"`
	RcpNo     string    `json:"rcp_no,omitempty"`
	Notified  bool      `json:"notified"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}

// CorruptError means the state could not be read or parsed. Callers treat
// it as "no prior state".
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("state %s unreadable: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }
