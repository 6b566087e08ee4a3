package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "dartwatch/internal/transport"
	logx "dartwatch/pkg/logx"
)

const defaultAPIURL = "https://api.telegram.org"

type Config struct {
	APIURL  string // default https://api.telegram.org
	Token   string
	ChatID  string // numeric id or @channelname
	Timeout time.Duration
	// RatePerSec paces SendChunked. Default 1.
	RatePerSec int
}

// Client sends messages through the Bot API sendMessage method.
//
// The bot runs offline (no getMe on start) and is never polled; it is used
// only as a typed HTTP client for the Bot API. Calls are serialized.
type Client struct {
	cfg Config
	log logx.Logger

	mu      sync.Mutex
	bot     *tele.Bot
	tr      *callTransport
	limiter *rate.Limiter
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type Option func(*Client)

// WithTransport overrides the underlying round tripper (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.tr.next = rt
		}
	}
}

func New(cfg Config, log logx.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		return nil, errors.New("telegram chat id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}

	c := &Client{
		cfg:     cfg,
		log:     log,
		tr:      &callTransport{next: http.DefaultTransport},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout, Transport: c.tr},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	c.bot = b
	return c, nil
}

// Send posts text to the configured chat with link previews disabled.
//
// A non-200 answer is not an error here: it comes back in the result for the
// caller to judge (see CheckDelivery). The error is set only when no HTTP
// response was received; it is then a *NotifierError.
func (c *Client) Send(ctx context.Context, text string) (kit.DeliveryResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return kit.DeliveryResult{}, &NotifierError{Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tr.begin(ctx)
	start := time.Now()
	data, err := c.bot.Raw("sendMessage", sendMessageRequest{
		ChatID:                c.cfg.ChatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	status := c.tr.end()

	if status == 0 {
		if err == nil {
			err = errors.New("no response")
		}
		return kit.DeliveryResult{}, &NotifierError{Err: c.redact(err)}
	}

	res := kit.DeliveryResult{StatusCode: status, Body: string(data)}
	c.log.Debug("telegram send",
		logx.Int("http_status", status),
		logx.Int("text_len", len(text)),
		logx.Duration("took", time.Since(start)),
	)
	return res, nil
}

// SendChunked splits text with Chunk and sends the pieces in order, paced by
// the client's rate limit. It stops at the first piece that is not delivered.
func (c *Client) SendChunked(ctx context.Context, text string, maxLen int) (int, error) {
	chunks := Chunk(text, maxLen)
	for i, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return i, &NotifierError{Err: err}
		}
		res, err := c.Send(ctx, chunk)
		if err != nil {
			return i, err
		}
		if err := CheckDelivery(res); err != nil {
			return i, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return len(chunks), nil
}

// redact removes the bot token, which telebot embeds in request URLs.
func (c *Client) redact(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, c.cfg.Token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, c.cfg.Token, "<token>"))
}

// callTransport binds each request to the caller's context and records the
// HTTP status of the last response. Client.mu serializes begin/end.
type callTransport struct {
	next http.RoundTripper

	mu     sync.Mutex
	ctx    context.Context
	status int
}

func (t *callTransport) begin(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.status = 0
	t.mu.Unlock()
}

func (t *callTransport) end() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctx = nil
	return t.status
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	if ctx != nil {
		req = req.Clone(ctx)
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.status = resp.StatusCode
	t.mu.Unlock()
	return resp, nil
}
