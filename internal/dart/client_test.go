package dart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "dartwatch/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "secret-key", CorpCode: "00126380", Timeout: 2 * time.Second}, logx.Nop())
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestFetchLatestSendsQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = w.Write([]byte(`{"status":"013","message":"조회된 데이타가 없습니다."}`))
	})

	_, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/list.json", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "secret-key", q.Get("crtfc_key"))
	assert.Equal(t, "00126380", q.Get("corp_code"))
	assert.Equal(t, "1", q.Get("page_no"))
	assert.Equal(t, "1", q.Get("page_count"))
}

func TestFetchLatestReturnsFirstItem(t *testing.T) {
	c := newTestClient(t, jsonHandler(`{"status":"000","message":"정상","list":[
		{"corp_code":"00126380","corp_name":"삼성전자","rcp_no":"20240101000123","report_nm":"Quarterly Report","flr_nm":"삼성전자","rcept_dt":"20240101"},
		{"rcp_no":"20231231000001","report_nm":"Older"}]}`))

	d, err := c.FetchLatest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "20240101000123", d.ID)
	assert.Equal(t, "Quarterly Report", d.Title)
	assert.Equal(t, "20240101", d.ReceiptDate)
	assert.Equal(t, "https://dart.fss.or.kr/dsaf001/main.do?rcpNo=20240101000123", d.URL())
}

func TestFetchLatestNoData(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "status 013", body: `{"status":"013","message":"조회된 데이타가 없습니다."}`},
		{name: "status 000 empty list", body: `{"status":"000","message":"정상","list":[]}`},
		{name: "status 000 list omitted", body: `{"status":"000","message":"정상"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, jsonHandler(tt.body))
			d, err := c.FetchLatest(context.Background())
			require.NoError(t, err)
			assert.Nil(t, d)
		})
	}
}

func TestFetchLatestErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    ErrorKind
		raw     string
	}{
		{
			name:    "unknown status",
			handler: jsonHandler(`{"status":"020","message":"요청 제한을 초과하였습니다."}`),
			kind:    KindStatus,
			raw:     `"020"`,
		},
		{
			name:    "invalid key status",
			handler: jsonHandler(`{"status":"010","message":"등록되지 않은 키입니다."}`),
			kind:    KindStatus,
			raw:     `"010"`,
		},
		{
			name:    "malformed body",
			handler: jsonHandler(`<html>maintenance</html>`),
			kind:    KindDecode,
			raw:     "maintenance",
		},
		{
			name: "http 503",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
			},
			kind: KindHTTP,
			raw:  "unavailable",
		},
		{
			name:    "item without rcp_no",
			handler: jsonHandler(`{"status":"000","list":[{"report_nm":"x"}]}`),
			kind:    KindDecode,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			d, err := c.FetchLatest(context.Background())
			assert.Nil(t, d)
			var se *SourceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind, se.Kind)
			if tt.raw != "" {
				assert.Contains(t, se.Raw, tt.raw)
			}
		})
	}
}

func TestFetchLatestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL, APIKey: "secret-key", CorpCode: "1", Timeout: 50 * time.Millisecond}, logx.Nop())
	_, err := c.FetchLatest(context.Background())
	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindTimeout, se.Kind)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestFetchLatestTransportErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, APIKey: "secret-key", CorpCode: "1", Timeout: time.Second}, logx.Nop())
	_, err := c.FetchLatest(context.Background())
	require.Error(t, err)
	assert.True(t, IsSourceError(err))
	assert.False(t, strings.Contains(err.Error(), "secret-key"), err.Error())
}
