package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dartwatch/internal/config"
	"dartwatch/internal/dart"
	"dartwatch/internal/storage"
	"dartwatch/internal/transport/telegram"
	logx "dartwatch/pkg/logx"
)

const (
	testRcpNo = "20240101000123"
	listOne   = `{"status":"000","message":"정상","list":[{"corp_code":"00126380","corp_name":"Samsung","rcp_no":"20240101000123","report_nm":"Quarterly Report","flr_nm":"Samsung","rcept_dt":"20240101"}]}`
	listEmpty = `{"status":"000","message":"정상","list":[]}`
	listNone  = `{"status":"013","message":"조회된 데이타가 없습니다."}`
	listLimit = `{"status":"020","message":"요청 제한을 초과하였습니다."}`
)

type fakeDART struct {
	*httptest.Server
	hits atomic.Int32
	body atomic.Value // string
}

func newFakeDART(t *testing.T, body string) *fakeDART {
	t.Helper()
	f := &fakeDART{}
	f.body.Store(body)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.body.Load().(string))
	}))
	t.Cleanup(f.Close)
	return f
}

type fakeBot struct {
	*httptest.Server

	mu     sync.Mutex
	texts  []string
	status int
}

func newFakeBot(t *testing.T) *fakeBot {
	t.Helper()
	f := &fakeBot{status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &req)

		f.mu.Lock()
		f.texts = append(f.texts, req.Text)
		status := f.status
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1}}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":false,"error_code":500,"description":"Internal Server Error"}`)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeBot) setStatus(code int) {
	f.mu.Lock()
	f.status = code
	f.mu.Unlock()
}

func (f *fakeBot) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type harness struct {
	dart      *fakeDART
	bot       *fakeBot
	cfg       *config.Config
	statePath string
}

func newHarness(t *testing.T, dartBody string, mode config.Mode) *harness {
	t.Helper()
	h := &harness{dart: newFakeDART(t, dartBody), bot: newFakeBot(t)}
	h.statePath = filepath.Join(t.TempDir(), "state.json")

	cfg := config.Default()
	cfg.Mode = string(mode)
	cfg.DART.APIKey = "test-key"
	cfg.DART.CorpCode = "00126380"
	cfg.DART.BaseURL = h.dart.URL
	cfg.Telegram.Token = "123456:TEST-token"
	cfg.Telegram.ChatID = "-100123"
	cfg.Telegram.APIURL = h.bot.URL
	cfg.Telegram.RatePerSec = 1000
	cfg.Storage.Path = h.statePath
	h.cfg = cfg
	return h
}

func (h *harness) run(t *testing.T, opts ...BuildOption) (Outcome, error) {
	t.Helper()
	w, err := Build(h.cfg, logx.Nop(), opts...)
	require.NoError(t, err)
	defer w.Close()
	return w.Run(context.Background())
}

func (h *harness) writeState(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.statePath, []byte(content), 0o644))
}

func (h *harness) lastRcpNo(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(h.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	require.NoError(t, err)
	var st struct {
		LastRcpNo string `json:"last_rcp_no"`
	}
	require.NoError(t, json.Unmarshal(b, &st))
	return st.LastRcpNo
}

func TestFirstRunAnnouncesAndPersists(t *testing.T) {
	h := newHarness(t, listOne, config.ModeNormal)

	out, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, StageDone, out.Stage)
	assert.True(t, out.New)
	assert.True(t, out.Persisted)
	assert.True(t, out.Notified)
	assert.True(t, out.Passed(StageNotifiedAndPersisted))

	assert.Equal(t, []string{"📌 Quarterly Report\nhttps://dart.fss.or.kr/dsaf001/main.do?rcpNo=20240101000123"}, h.bot.sent())
	assert.Equal(t, testRcpNo, h.lastRcpNo(t))
}

func TestAlreadySeenSendsNothing(t *testing.T) {
	h := newHarness(t, listOne, config.ModeNormal)
	h.writeState(t, `{"last_rcp_no": "20240101000123"}`)

	out, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, StageDone, out.Stage)
	assert.False(t, out.New)
	assert.True(t, out.Passed(StageNoNewDisclosure))
	assert.Empty(t, h.bot.sent())
	assert.Equal(t, testRcpNo, h.lastRcpNo(t))
}

func TestSecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t, listOne, config.ModeNormal)

	_, err := h.run(t)
	require.NoError(t, err)
	_, err = h.run(t)
	require.NoError(t, err)

	assert.Len(t, h.bot.sent(), 1)
}

func TestNoDisclosuresIsSuccess(t *testing.T) {
	for name, body := range map[string]string{"empty list": listEmpty, "status 013": listNone} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, body, config.ModeNormal)
			out, err := h.run(t)
			require.NoError(t, err)
			assert.Equal(t, StageDone, out.Stage)
			assert.Nil(t, out.Disclosure)
			assert.Empty(t, h.bot.sent())
			assert.Equal(t, "", h.lastRcpNo(t))
		})
	}
}

func TestSourceErrorIsReported(t *testing.T) {
	h := newHarness(t, listLimit, config.ModeNormal)
	h.writeState(t, `{"last_rcp_no": "20231231000001"}`)

	out, err := h.run(t)
	require.Error(t, err)
	assert.True(t, dart.IsSourceError(err))
	assert.Equal(t, StageErrored, out.Stage)

	sent := h.bot.sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], "⚠️ Disclosure check failed (corp 00126380)"))
	assert.Contains(t, sent[0], `"status":"020"`)
	assert.NotContains(t, sent[0], "test-key")
	assert.Equal(t, "20231231000001", h.lastRcpNo(t))
}

func TestSourceErrorNotReportedWhenDisabled(t *testing.T) {
	h := newHarness(t, listLimit, config.ModeNormal)
	off := false
	h.cfg.Diagnostics.ReportErrors = &off

	_, err := h.run(t)
	require.Error(t, err)
	assert.Empty(t, h.bot.sent())
}

func TestMissingTokenContactsNothing(t *testing.T) {
	h := newHarness(t, listOne, config.ModeNormal)
	h.cfg.Telegram.Token = ""

	w, err := Build(h.cfg, logx.Nop())
	require.Error(t, err)
	assert.Nil(t, w)

	var ce *config.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Missing, "telegram.token")
	assert.EqualValues(t, 0, h.dart.hits.Load())
	assert.Empty(t, h.bot.sent())
	assert.NoFileExists(t, h.statePath)

	b, err := os.ReadFile(strings.TrimSuffix(h.statePath, ".json") + ".runs.jsonl")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)
	var rec storage.RunRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, string(StageErrored), rec.Stage)
	assert.Equal(t, "normal", rec.Mode)
	assert.Contains(t, rec.Error, "telegram.token")
	assert.NotEmpty(t, rec.RunID)
}

func TestDeliveryFailureKeepsPersistedState(t *testing.T) {
	h := newHarness(t, listOne, config.ModeNormal)
	h.bot.setStatus(http.StatusInternalServerError)

	out, err := h.run(t)
	require.Error(t, err)
	assert.True(t, telegram.IsNotifierError(err))
	assert.Equal(t, StageErrored, out.Stage)
	assert.True(t, out.Persisted)
	assert.False(t, out.Notified)

	// One attempt only; no failure report over a channel that just failed.
	assert.Len(t, h.bot.sent(), 1)
	assert.Equal(t, testRcpNo, h.lastRcpNo(t))

	h.bot.setStatus(http.StatusOK)
	_, err = h.run(t)
	require.NoError(t, err)
	assert.Len(t, h.bot.sent(), 1, "disclosure must not be announced twice")
}

func TestCorruptStateCountsAsFirstRun(t *testing.T) {
	h := newHarness(t, listOne, config.ModeNormal)
	h.writeState(t, "{not json")

	out, err := h.run(t)
	require.NoError(t, err)
	assert.True(t, out.New)
	assert.Len(t, h.bot.sent(), 1)
	assert.Equal(t, testRcpNo, h.lastRcpNo(t))
}

func TestTestModeHeartbeat(t *testing.T) {
	t.Run("no disclosures", func(t *testing.T) {
		h := newHarness(t, listNone, config.ModeTest)
		out, err := h.run(t)
		require.NoError(t, err)
		assert.True(t, out.Heartbeat)
		assert.True(t, out.Passed(StageNotified))
		assert.Equal(t, []string{heartbeatNoDisclosures}, h.bot.sent())
	})
	t.Run("nothing new", func(t *testing.T) {
		h := newHarness(t, listOne, config.ModeTest)
		h.writeState(t, `{"last_rcp_no": "20240101000123"}`)
		out, err := h.run(t)
		require.NoError(t, err)
		assert.True(t, out.Heartbeat)
		assert.Equal(t, []string{heartbeatNothingNew}, h.bot.sent())
	})
	t.Run("new disclosure", func(t *testing.T) {
		h := newHarness(t, listOne, config.ModeTest)
		out, err := h.run(t)
		require.NoError(t, err)
		assert.False(t, out.Heartbeat)
		assert.Len(t, h.bot.sent(), 1)
		assert.Equal(t, testRcpNo, h.lastRcpNo(t))
	})
}

func TestTestModeHeartbeatFailureErrors(t *testing.T) {
	h := newHarness(t, listNone, config.ModeTest)
	h.bot.setStatus(http.StatusInternalServerError)

	out, err := h.run(t)
	require.Error(t, err)
	assert.True(t, telegram.IsNotifierError(err))
	assert.Equal(t, StageErrored, out.Stage)
}

func TestTestModeLogDump(t *testing.T) {
	h := newHarness(t, listNone, config.ModeTest)
	h.cfg.Diagnostics.IncludeLogs = true
	h.cfg.Diagnostics.MaxMessageChars = 40

	logs := "line one of the run log\nline two of the run log"
	_, err := h.run(t, WithLogs(func() string { return logs }))
	require.NoError(t, err)

	sent := h.bot.sent()
	require.GreaterOrEqual(t, len(sent), 3)
	assert.Equal(t, heartbeatNoDisclosures, sent[0])
	assert.Equal(t, logDumpHeader+"\n"+logs, strings.Join(sent[1:], "\n"))
	for _, s := range sent[1:] {
		assert.LessOrEqual(t, telegram.TextLen(s), 40)
	}
}

func TestNormalModeNeverDumpsLogs(t *testing.T) {
	h := newHarness(t, listNone, config.ModeNormal)
	h.cfg.Diagnostics.IncludeLogs = true

	_, err := h.run(t, WithLogs(func() string { return "something" }))
	require.NoError(t, err)
	assert.Empty(t, h.bot.sent())
}

func TestLogsNeverCarryCredentials(t *testing.T) {
	for name, body := range map[string]string{"announce": listOne, "source error": listLimit} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, body, config.ModeNormal)
			var buf bytes.Buffer
			w, err := Build(h.cfg, logx.NewWriter(&buf, "trace"))
			require.NoError(t, err)
			defer w.Close()

			_, _ = w.Run(context.Background())
			require.NotEmpty(t, buf.String())
			assert.NotContains(t, buf.String(), h.cfg.DART.APIKey)
			assert.NotContains(t, buf.String(), h.cfg.Telegram.Token)
			assert.Contains(t, buf.String(), `"run_id"`)
		})
	}
}
