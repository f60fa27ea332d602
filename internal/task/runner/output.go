package runner

import (
	"bytes"
	"strings"
	"sync"

	logx "reportd/pkg/logx"

	"golang.org/x/time/rate"
)

// lineCapture is an io.Writer that splits child output into lines as it
// arrives. Every line is kept in a bounded tail, relayed to the log while
// the limiter allows it, and scanned for the artifact marker.
type lineCapture struct {
	mu      sync.Mutex
	stream  string
	log     logx.Logger
	limiter *rate.Limiter

	buf        bytes.Buffer
	tail       []string
	tailCap    int
	artifact   string
	suppressed int
}

func newLineCapture(stream string, log logx.Logger, limiter *rate.Limiter, tailCap int) *lineCapture {
	if tailCap <= 0 {
		tailCap = 50
	}
	return &lineCapture{stream: stream, log: log, limiter: limiter, tailCap: tailCap}
}

func (c *lineCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(p)
	for {
		i := bytes.IndexByte(c.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(c.buf.Next(i + 1))
		c.lineLocked(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (c *lineCapture) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() > 0 {
		c.lineLocked(strings.TrimRight(c.buf.String(), "\r\n"))
		c.buf.Reset()
	}
	if c.suppressed > 0 {
		c.log.Debug("child output throttled", logx.String("stream", c.stream), logx.Int("lines", c.suppressed))
		c.suppressed = 0
	}
}

func (c *lineCapture) lineLocked(line string) {
	if line == "" {
		return
	}
	if len(c.tail) == c.tailCap {
		copy(c.tail, c.tail[1:])
		c.tail = c.tail[:len(c.tail)-1]
	}
	c.tail = append(c.tail, line)

	if strings.HasPrefix(line, ArtifactPrefix) {
		c.artifact = strings.TrimSpace(strings.TrimPrefix(line, ArtifactPrefix))
	}

	if c.limiter == nil || c.limiter.Allow() {
		c.log.Info(line, logx.String("stream", c.stream))
	} else {
		c.suppressed++
	}
}

func (c *lineCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tail...)
}

func (c *lineCapture) Artifact() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}
