package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hirewave/notify/internal/model"
)

// Connection errors.
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("connection already closed")
	ErrStaleConnection = errors.New("no server ping received, connection stale")
)

// Config holds settings for a single WebSocket connection.
type Config struct {
	URL              string        // ws:// or wss:// endpoint
	Token            string        // bearer token, sent as a query parameter
	HandshakeTimeout time.Duration // dial deadline
	PingTimeout      time.Duration // max silence before declaring staleness
	WriteTimeout     time.Duration
	BufferSize       int // frame channel capacity
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingTimeout == 0 {
		// Server probes every 30s; allow for two missed probes plus slack.
		c.PingTimeout = 75 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 64
	}
}

// Client is a single live connection. One-shot: once closed it never
// reconnects; the Manager creates a fresh Client per attempt.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	frames chan model.PushFrame
	errs   chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastPingAt time.Time
}

// NewClient creates an unconnected client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		frames: make(chan model.PushFrame, cfg.BufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the server and starts the read and liveness loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	url := c.cfg.URL
	if c.cfg.Token != "" {
		url += "?token=" + c.cfg.Token
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server sends ping, we answer pong and note the liveness signal.
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go c.readLoop()
	go c.livenessLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}
	return nil
}

// Frames returns decoded push frames, in arrival order.
func (c *Client) Frames() <-chan model.PushFrame {
	return c.frames
}

// Errors returns connection failures. At most one error is delivered.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop decodes frames until the connection dies.
func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Errors after Close are expected teardown noise.
			select {
			case <-c.done:
			default:
				select {
				case c.errs <- err:
				default:
				}
			}
			return
		}

		var frame model.PushFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if frame.Type != model.PushFrameType {
			c.logger.Debug("ignoring unknown frame type", "type", frame.Type)
			continue
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// livenessLoop declares the connection stale when the server stops probing.
func (c *Client) livenessLoop() {
	ticker := time.NewTicker(c.cfg.PingTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			silence := time.Since(c.lastPingAt)
			c.mu.RUnlock()

			if silence > c.cfg.PingTimeout {
				c.logger.Warn("connection stale", "silence", silence)
				select {
				case c.errs <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
