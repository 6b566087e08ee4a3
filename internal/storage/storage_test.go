package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	logx "dartwatch/pkg/logx"
)

func openTestStore(t *testing.T, driver string) (Store, string) {
	t.Helper()
	name := "state.json"
	if driver == "sqlite" {
		name = "state.db"
	}
	path := filepath.Join(t.TempDir(), name)
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestLoadMissingReturnsZeroState(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		st, _ := openTestStore(t, driver)
		got, err := st.Load(context.Background())
		if err != nil {
			t.Fatalf("%s: Load: %v", driver, err)
		}
		if got.LastRcpNo != nil {
			t.Fatalf("%s: LastRcpNo = %q, want nil", driver, *got.LastRcpNo)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		st, _ := openTestStore(t, driver)
		ctx := context.Background()
		if err := st.Save(ctx, State{}.WithLast("20240101000123")); err != nil {
			t.Fatalf("%s: Save: %v", driver, err)
		}
		got, err := st.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load: %v", driver, err)
		}
		if !got.Seen("20240101000123") {
			t.Fatalf("%s: loaded %q", driver, got.Last())
		}

		if err := st.Save(ctx, State{}); err != nil {
			t.Fatalf("%s: Save(null): %v", driver, err)
		}
		got, err = st.Load(ctx)
		if err != nil || got.LastRcpNo != nil {
			t.Fatalf("%s: after null save got %+v err %v", driver, got, err)
		}
	}
}

func TestFileStateFormat(t *testing.T) {
	st, path := openTestStore(t, "file")
	if err := st.Save(context.Background(), State{}.WithLast("20240101000123")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "state_file", b)

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileCorruptStateIsReported(t *testing.T) {
	st, path := openTestStore(t, "file")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load(context.Background())
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("Load err = %v, want *CorruptError", err)
	}
	if got.LastRcpNo != nil {
		t.Fatalf("corrupt state should load as zero, got %q", got.Last())
	}
}

func TestFileAppendRun(t *testing.T) {
	st, path := openTestStore(t, "file")
	ctx := context.Background()
	recs := []RunRecord{
		{RunID: "a", StartedAt: time.Unix(1, 0).UTC(), Mode: "normal", Stage: "done", RcpNo: "1", Notified: true},
		{RunID: "b", StartedAt: time.Unix(2, 0).UTC(), Mode: "normal", Stage: "errored", Error: "boom"},
	}
	for _, r := range recs {
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	_ = st.Close()

	f, err := os.Open(filepath.Join(filepath.Dir(path), "state.runs.jsonl"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	var got []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("journal line: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[0].RunID != "a" || got[1].Error != "boom" {
		t.Fatalf("journal = %+v", got)
	}
}

func TestSQLiteAppendRun(t *testing.T) {
	st, _ := openTestStore(t, "sqlite")
	if err := st.AppendRun(context.Background(), RunRecord{RunID: "x", Mode: "test", Stage: "done"}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	var n int
	if err := st.(*sqliteStore).db.QueryRow(`SELECT COUNT(*) FROM runs WHERE run_id = 'x'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("runs count = %d", n)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
