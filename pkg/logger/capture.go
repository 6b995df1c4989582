package logger

import (
	"bytes"
	"io"
	"sync"
)

// Capture is a writer that passes everything through to Out and
// additionally splits it into lines readable with Lines.
// Lines are dropped when nobody drains them fast enough.
type Capture struct {
	Out io.Writer

	mu    sync.Mutex
	buf   bytes.Buffer
	lines chan string
}

const captureBacklog = 256

func NewCapture(out io.Writer) *Capture {
	return &Capture{Out: out, lines: make(chan string, captureBacklog)}
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.buf.Write(p)
	for {
		i := bytes.IndexByte(c.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(c.buf.Next(i+1), "\r\n"))
		select {
		case c.lines <- line:
		default:
		}
	}
	c.mu.Unlock()
	if c.Out == nil {
		return len(p), nil
	}
	return c.Out.Write(p)
}

// Drain returns all complete lines written so far without blocking.
func (c *Capture) Drain() (lines []string) {
	for {
		select {
		case l := <-c.lines:
			lines = append(lines, l)
		default:
			return
		}
	}
}
