package transport

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// Conn is a Transport over any io.ReadWriter, such as an open serial port.
//
// Replies are read by a background goroutine so that ReadLine can give up
// after the read timeout even when the underlying reader blocks forever.
type Conn struct {
	rw io.ReadWriter

	term    string
	timeout time.Duration

	scan    *bufio.Scanner
	lines   chan string
	readErr error

	closeCh   chan struct{}
	closeOnce sync.Once

	mx sync.Mutex
}

var _ Transport = &Conn{}

// Option configures a Conn.
type Option func(*Conn)

// WithReadTimeout bounds every ReadLine call.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTerminator sets the line terminator appended to outgoing commands.
// Incoming lines may end in either CR or LF regardless.
func WithTerminator(term string) Option {
	return func(c *Conn) {
		if term != "" {
			c.term = term
		}
	}
}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter, opts ...Option) *Conn {
	c := &Conn{
		rw:      rw,
		term:    "\n",
		timeout: DefaultReadTimeout,
		scan:    bufio.NewScanner(rw),
		lines:   make(chan string, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.scan.Split(splitLines)
	go c.readLoop()
	return c
}

// splitLines splits on CR or LF and drops empty lines, so CRLF terminated
// replies produce a single token.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if atEOF && start == len(data) {
		return len(data), nil, nil
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

func (c *Conn) readLoop() {
	defer close(c.lines)
	for c.scan.Scan() {
		select {
		case c.lines <- c.scan.Text():
		case <-c.closeCh:
			return
		}
	}
	c.readErr = c.scan.Err()
}

// WriteLine writes a single command followed by the terminator.
func (c *Conn) WriteLine(line string) error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	_, err := io.WriteString(c.rw, strings.TrimSpace(line)+c.term)
	return err
}

// ReadLine waits up to the read timeout for the next reply line.
func (c *Conn) ReadLine() (string, error) {
	t := time.NewTimer(c.timeout)
	defer t.Stop()

	select {
	case <-c.closeCh:
		return "", io.ErrClosedPipe
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-t.C:
		return "", ErrTimeout
	}
}

// Discard drops any reply lines that arrived but were never read, such as a
// late reply to a query that already timed out.
func (c *Conn) Discard() int {
	var n int
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Close will abort any pending reads and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
