package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport errors.
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Frame is a raw push frame with its local receive time.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Conn is a single push-channel connection.
type Conn interface {
	Connect(ctx context.Context) error
	Close() error
	Send(data []byte) error

	// Frames returns every frame read from the socket.
	Frames() <-chan Frame

	// Errors reports the error that ended the read loop or the heartbeat.
	Errors() <-chan error

	IsConnected() bool
}

// TransportConfig configures a Conn.
type TransportConfig struct {
	URL          string
	PingInterval time.Duration // keepalive ping period
	PingTimeout  time.Duration // max silence before the connection is stale
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   64,
	}
}

type conn struct {
	cfg    TransportConfig
	logger *slog.Logger

	ws *websocket.Conn

	frames chan Frame
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewConn creates a push-channel connection. Call Connect to dial.
func NewConn(cfg TransportConfig, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultTransportConfig().BufferSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultTransportConfig().PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultTransportConfig().WriteTimeout
	}

	return &conn{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (c *conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	ws.SetPingHandler(func(data string) error {
		c.touch()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("push channel connected", "url", c.cfg.URL)

	return nil
}

func (c *conn) touch() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	ws := c.ws
	c.mu.Unlock()

	close(c.done)

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return ws.Close()
	}

	return nil
}

func (c *conn) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) Frames() <-chan Frame {
	return c.frames
}

func (c *conn) Errors() <-chan error {
	return c.errors
}

func (c *conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *conn) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
			default:
				c.report(err)
			}
			return
		}

		select {
		case c.frames <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		}
	}
}

func (c *conn) report(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// heartbeatLoop pings the server and flags the connection stale when
// neither pings nor pongs arrive within PingTimeout.
func (c *conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			ws := c.ws
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			c.writeMu.Lock()
			if err := ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
			c.writeMu.Unlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("push channel stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.report(ErrStaleConnection)
				return
			}
		}
	}
}
