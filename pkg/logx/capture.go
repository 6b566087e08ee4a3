package logx

import (
	"bytes"
	"sync"
)

const defaultCaptureBytes = 64 << 10

// captureBuffer keeps the newest lines up to limit bytes.
// When full, whole lines are dropped from the front.
type captureBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func newCaptureBuffer(limit int) *captureBuffer {
	c := &captureBuffer{}
	c.SetLimit(limit)
	return c
}

func (c *captureBuffer) SetLimit(limit int) {
	if limit <= 0 {
		limit = defaultCaptureBytes
	}
	c.mu.Lock()
	c.limit = limit
	c.trimLocked()
	c.mu.Unlock()
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(p)
	c.trimLocked()
	return len(p), nil
}

func (c *captureBuffer) trimLocked() {
	for c.buf.Len() > c.limit {
		b := c.buf.Bytes()
		i := bytes.IndexByte(b, '\n')
		if i < 0 || i+1 >= len(b) {
			// single oversized line: keep its tail
			tail := append([]byte(nil), b[len(b)-c.limit:]...)
			c.buf.Reset()
			c.buf.Write(tail)
			return
		}
		c.buf.Next(i + 1)
	}
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *captureBuffer) Reset() {
	c.mu.Lock()
	c.buf.Reset()
	c.mu.Unlock()
}
