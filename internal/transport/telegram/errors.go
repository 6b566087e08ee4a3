package telegram

import (
	"encoding/json"
	"errors"
	"fmt"

	kit "dartwatch/internal/transport"
)

// NotifierError is a failed delivery: either the request never completed
// (Err set) or the Bot API answered with a non-200 status.
type NotifierError struct {
	StatusCode  int
	Description string
	Body        string
	Err         error
}

func (e *NotifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram: send failed: %v", e.Err)
	}
	if e.Description != "" {
		return fmt.Sprintf("telegram: send failed: http %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram: send failed: http %d", e.StatusCode)
}

func (e *NotifierError) Unwrap() error { return e.Err }

// IsNotifierError reports whether err is (or wraps) a *NotifierError.
func IsNotifierError(err error) bool {
	var ne *NotifierError
	return errors.As(err, &ne)
}

// CheckDelivery converts an undelivered result into a *NotifierError: any
// non-200 status, or a 200 whose Bot API envelope says "ok": false.
func CheckDelivery(res kit.DeliveryResult) error {
	var out struct {
		OK          *bool  `json:"ok"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal([]byte(res.Body), &out)
	if res.OK() && (out.OK == nil || *out.OK) {
		return nil
	}
	return &NotifierError{StatusCode: res.StatusCode, Description: out.Description, Body: res.Body}
}
