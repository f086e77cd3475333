// Package feed holds the client for the vendor's public tick socket.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultURL            = "wss://wsprc.royalassetindo.co.id"
	DefaultReconnectDelay = 3 * time.Second
)

// State is the connection lifecycle of a Client.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers are invoked from a single goroutine, one connection at a time.
type Handlers struct {
	OnData  func([]Tick)
	OnError func(msg string)
	OnOpen  func()
}

type Option func(*Client)

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.delay = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// Client keeps one socket open until Disconnect. Every close that the caller
// did not ask for schedules exactly one reconnect after a fixed delay. There is
// no heartbeat: a stalled socket that never closes goes unnoticed.
type Client struct {
	url    string
	h      Handlers
	delay  time.Duration
	dialer *websocket.Dialer
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	timer *time.Timer
}

func New(url string, h Handlers, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:   url,
		h:     h,
		delay: DefaultReconnectDelay,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		log:   zap.NewNop(),
		state: StateConnecting,
	}
	for _, o := range opts {
		o(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Connect opens the socket and returns the function that tears it down.
func Connect(url string, h Handlers, opts ...Option) (disconnect func()) {
	c := New(url, h, opts...)
	c.Start()
	return c.Disconnect
}

func (c *Client) Start() { c.connect() }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disconnect stops the reconnect loop for good and closes the socket if it is
// open or still connecting. Safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.log.Info("feed disconnected by caller", zap.String("url", c.url))
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.timer = nil
	c.mu.Unlock()

	go c.run()
}

func (c *Client) run() {
	conn, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		if c.closed() {
			return
		}
		c.log.Warn("feed dial failed", zap.String("url", c.url), zap.Error(err))
		c.fireError()
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.state = StateOpen
	c.conn = conn
	c.mu.Unlock()

	c.log.Info("feed connected", zap.String("url", c.url))
	if c.h.OnOpen != nil {
		c.h.OnOpen()
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.closed() {
				return
			}
			c.log.Info("feed closed", zap.Error(err))
			// a close frame is an orderly close; anything else also counts as an error
			if _, orderly := err.(*websocket.CloseError); !orderly {
				c.fireError()
			}
			_ = conn.Close()
			c.scheduleReconnect()
			return
		}
		ticks := ParseSnapshot(msg)
		if ticks == nil {
			c.log.Debug("feed payload dropped", zap.Int("bytes", len(msg)))
			continue
		}
		if c.closed() {
			return
		}
		if c.h.OnData != nil {
			c.h.OnData(ticks)
		}
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateReconnecting
	c.conn = nil
	c.timer = time.AfterFunc(c.delay, c.connect)
}

func (c *Client) fireError() {
	if c.h.OnError != nil {
		c.h.OnError("")
	}
}

func (c *Client) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateClosed
}
