package spjs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mastercactapus/echem/transport"
)

// WriteTimeout bounds how long a Port write waits for the websocket.
const WriteTimeout = 3 * time.Second

// Port is a serial port opened through the server. Bytes written are sent
// with sendjson; bytes the server reports for the port are read back in
// order.
type Port struct {
	c    *Client
	name string

	pr *io.PipeReader
	pw *io.PipeWriter
}

var _ io.ReadWriteCloser = &Port{}

// Open asks the server to open a serial port and starts collecting its data.
func (c *Client) Open(ctx context.Context, name string, baud int) (*Port, error) {
	pr, pw := io.Pipe()
	p := &Port{c: c, name: name, pr: pr, pw: pw}

	c.mx.Lock()
	if _, ok := c.ports[name]; ok {
		c.mx.Unlock()
		return nil, fmt.Errorf("spjs: port %s already open", name)
	}
	c.ports[name] = p
	c.mx.Unlock()

	if err := c.WriteString(ctx, fmt.Sprintf("open %s %d default", name, baud)); err != nil {
		c.release(p)
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return p, nil
}

func (c *Client) release(p *Port) {
	c.mx.Lock()
	if c.ports[p.name] == p {
		delete(c.ports, p.name)
	}
	c.mx.Unlock()
	p.pw.Close()
}

func (p *Port) deliver(data string) {
	// blocks until the reader consumes it, which keeps frames in order
	p.pw.Write([]byte(data))
}

func (p *Port) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *Port) Write(b []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
	defer cancel()
	err := p.c.SendJSON(ctx, JSON{
		Port: p.name,
		Data: []Data{{Data: string(b), ID: p.c.id()}},
	})
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close stops collecting data and asks the server to close the port.
func (p *Port) Close() error {
	p.c.release(p)
	ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
	defer cancel()
	err := p.c.WriteString(ctx, "close "+p.name)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", p.name, err)
	}
	return nil
}

// OpenConn opens a serial port through the server and returns a line
// Transport over it. Closing the Conn closes the port.
func (c *Client) OpenConn(ctx context.Context, name string, baud int, opts ...transport.Option) (*transport.Conn, error) {
	p, err := c.Open(ctx, name, baud)
	if err != nil {
		return nil, err
	}
	return transport.NewConn(p, opts...), nil
}
