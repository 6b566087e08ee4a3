package dart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "dartwatch/pkg/logx"
)

const maxBodyBytes = 1 << 20

type Config struct {
	BaseURL  string // e.g. https://opendart.fss.or.kr/api
	APIKey   string
	CorpCode string
	Timeout  time.Duration
}

// Client queries the OpenDART disclosure listing for one corporation.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(cfg Config, log logx.Logger, opts ...Option) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	c := &Client{cfg: cfg, log: log, http: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchLatest asks for page 1 with one item of the newest-first listing.
//
// It returns (nil, nil) when the corporation has no disclosures: either
// status "000" with an empty list or the dedicated "013" status. Everything
// else that is not a usable item is a *SourceError.
func (c *Client) FetchLatest(ctx context.Context) (*Disclosure, error) {
	q := url.Values{}
	q.Set("crtfc_key", c.cfg.APIKey)
	q.Set("corp_code", c.cfg.CorpCode)
	q.Set("page_no", "1")
	q.Set("page_count", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/list.json?"+q.Encode(), nil)
	if err != nil {
		return nil, &SourceError{Kind: KindTransport, Err: c.redact(err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		kind := KindTransport
		if isTimeout(err) {
			kind = KindTimeout
		}
		return nil, &SourceError{Kind: kind, Err: c.redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		kind := KindTransport
		if isTimeout(err) {
			kind = KindTimeout
		}
		return nil, &SourceError{Kind: kind, HTTPStatus: resp.StatusCode, Err: c.redact(err)}
	}
	c.log.Debug("listing fetched",
		logx.Int("http_status", resp.StatusCode),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		return nil, &SourceError{Kind: KindHTTP, HTTPStatus: resp.StatusCode, Raw: string(body)}
	}

	var env listResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &SourceError{Kind: KindDecode, HTTPStatus: resp.StatusCode, Raw: string(body), Err: err}
	}

	switch env.Status {
	case StatusOK:
		if len(env.List) == 0 {
			return nil, nil
		}
		d := env.List[0].disclosure()
		if d.ID == "" {
			return nil, &SourceError{
				Kind:       KindDecode,
				HTTPStatus: resp.StatusCode,
				Raw:        string(body),
				Err:        errors.New("list item without rcp_no"),
			}
		}
		return &d, nil
	case StatusNoData:
		return nil, nil
	default:
		return nil, &SourceError{
			Kind:       KindStatus,
			HTTPStatus: resp.StatusCode,
			Status:     env.Status,
			Message:    env.Message,
			Raw:        string(body),
		}
	}
}

// redact strips the API key from errors that embed the request URL.
func (c *Client) redact(err error) error {
	if err == nil || c.cfg.APIKey == "" {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: strings.ReplaceAll(ue.URL, url.QueryEscape(c.cfg.APIKey), "REDACTED"), Err: ue.Err}
	}
	if msg := err.Error(); strings.Contains(msg, c.cfg.APIKey) {
		return fmt.Errorf("%s", strings.ReplaceAll(msg, c.cfg.APIKey, "REDACTED"))
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
