package transport

import (
	"context"
	"net/http"
)

// DeliveryResult is what the chat endpoint answered. Transports do not turn a
// non-200 answer into an error; callers decide via OK.
type DeliveryResult struct {
	StatusCode int
	Body       string
}

func (r DeliveryResult) OK() bool { return r.StatusCode == http.StatusOK }

// Sender delivers one text message to a preconfigured chat.
type Sender interface {
	Send(ctx context.Context, text string) (DeliveryResult, error)
}
