package registry

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState tracks the lifecycle of a single live connection. A closed
// connection never reopens; a new handshake creates a new Conn.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

// Conn is one authenticated live connection, owned by exactly one user.
type Conn struct {
	ws     *websocket.Conn
	userID string

	// Write serialization
	writeMu sync.Mutex

	// Guarded by the hub mutex
	state     ConnState
	confirmed bool
}

// UserID returns the owning user.
func (c *Conn) UserID() string {
	return c.userID
}

// send writes one message with a deadline. Never blocks past the deadline;
// a slow peer fails the write and gets pruned by the next heartbeat tick.
func (c *Conn) send(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ping sends a transport-level liveness probe.
func (c *Conn) ping(timeout time.Duration) error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// closeWith sends a close frame with the given code and closes the socket.
func (c *Conn) closeWith(code int, reason string) {
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	c.ws.Close()
}
