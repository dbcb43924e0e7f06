// Package spjs is a client for serial-port-json-server, which exposes the
// serial ports of a remote host over a websocket.
package spjs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("spjs: client closed")

// DefaultReconnectDelay is the pause between connection attempts.
const DefaultReconnectDelay = 3 * time.Second

type Client struct {
	url            string
	log            logrus.FieldLogger
	reconnectDelay time.Duration

	mx          sync.RWMutex
	serialPorts []SerialPort
	ports       map[string]*Port

	outgoing chan message
	nextID   uint64

	ctx       context.Context
	cancel    context.CancelFunc
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name         string
	Friendly     string
	SerialNumber string
	DeviceClass  string
	IsOpen       bool
	IsPrimary    bool
	RelatedNames []string
	Baud         int
	USBVID       string
	USBPID       string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

// WithReconnectDelay sets the pause between connection attempts.
func WithReconnectDelay(d time.Duration) Option { return func(c *Client) { c.reconnectDelay = d } }

// NewClient starts connecting to url in the background. The connection is
// re-established whenever it drops until Close is called.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		log:            logrus.StandardLogger(),
		reconnectDelay: DefaultReconnectDelay,
		ports:          make(map[string]*Port),
		outgoing:       make(chan message, 1000),
		closeCh:        make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.loop()

	return c
}

func parseMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (c *Client) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				c.log.WithError(err).Warn("spjs read")
			}
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			c.log.WithError(err).Warn("spjs read")
			continue
		}
		val, err := parseMessage(data, msg)
		if err != nil {
			c.log.WithError(err).Debug("spjs parse")
			continue
		}
		c.dispatch(val)
	}
}

func (c *Client) dispatch(val interface{}) {
	switch v := val.(type) {
	case *SerialPortList:
		c.mx.Lock()
		c.serialPorts = v.SerialPorts
		c.mx.Unlock()
	case *DataFrame:
		c.mx.RLock()
		p := c.ports[v.Port]
		c.mx.RUnlock()
		if p != nil {
			p.deliver(v.Data)
		}
	case *ErrorMessage:
		c.log.WithField("error", v.Error).Warn("spjs server error")
	case *CmdStatus:
		c.log.WithField("cmd", v.Cmd).WithField("id", v.ID).Debug("spjs status")
	}
}

func (c *Client) loop() {
	defer close(c.done)
	var nextUp message

reconnect:
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.log.WithField("url", c.url).Info("connecting to spjs")
		ws, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			c.log.WithError(err).Warn("spjs connect")
			select {
			case <-c.closeCh:
				return
			case <-time.After(c.reconnectDelay):
			}
			continue
		}
		c.log.Info("spjs connected")
		ch := make(chan struct{})
		go c.readLoop(ws, ch)
		go c.WriteString(context.Background(), "list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					c.log.WithError(err).Warn("spjs send")
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-c.closeCh:
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				ws.Close()
				<-ch
				return
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-c.outgoing:
			}
		}
	}
}

func (c *Client) send(ctx context.Context, payload []byte) error {
	m := message{done: make(chan struct{}), payload: payload}
	select {
	case c.outgoing <- m:
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-m.done:
		return nil
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// SendJSON queues data for a port and waits until it was written to the
// websocket.
func (c *Client) SendJSON(ctx context.Context, v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(ctx, append([]byte("sendjson "), data...))
}

// WriteString sends a raw server command such as "list".
func (c *Client) WriteString(ctx context.Context, data string) error {
	return c.send(ctx, []byte(data))
}

func (c *Client) id() string {
	return "echem" + strconv.FormatUint(atomic.AddUint64(&c.nextID, 1), 10)
}

// SerialPorts returns the most recent port list reported by the server.
func (c *Client) SerialPorts() []SerialPort {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return append([]SerialPort(nil), c.serialPorts...)
}

// Close disconnects and stops reconnecting. Open ports stop receiving data.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.cancel()
	})

	// unblock a read loop waiting on a port nobody reads
	c.mx.Lock()
	ports := c.ports
	c.ports = make(map[string]*Port)
	c.mx.Unlock()
	for _, p := range ports {
		p.pw.CloseWithError(ErrClosed)
	}

	<-c.done
	return nil
}
