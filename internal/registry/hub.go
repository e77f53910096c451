package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hirewave/notify/internal/model"
)

// Config holds hub settings.
type Config struct {
	// HeartbeatInterval is the sweep period. A peer that fails to answer a
	// ping within one full interval is pruned on the next tick, so a dead
	// connection is gone within two intervals of going silent.
	HeartbeatInterval time.Duration

	// WriteTimeout bounds every outbound write.
	WriteTimeout time.Duration
}

// Stats summarizes registry occupancy.
type Stats struct {
	Users int
	Conns int
}

// Hub is the process-wide mapping of user id to open connections.
//
// The map is mutated from three contexts that all run concurrently:
// handshake completion (Register), close/error handling (Unregister), and
// the heartbeat sweep. One mutex serializes all of them.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]map[*Conn]struct{}
}

// NewHub creates a hub. Run must be called for heartbeat sweeping to happen.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &Hub{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]map[*Conn]struct{}),
	}
}

// Register adds an authenticated connection for a user and returns its handle.
func (h *Hub) Register(userID string, ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:     ws,
		userID: userID,
		state:  StateConnecting,
	}

	ws.SetReadLimit(4096)
	ws.SetPongHandler(func(string) error {
		h.confirm(c)
		return nil
	})

	h.mu.Lock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
	c.state = StateOpen
	c.confirmed = true
	h.mu.Unlock()

	h.logger.Debug("connection registered", "user_id", userID)
	return c
}

// Unregister removes a connection and closes its socket. Idempotent; safe to
// call from both the read pump and the sweep.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()

	c.ws.Close()
	h.logger.Debug("connection unregistered", "user_id", c.userID)
}

// removeLocked deletes c from the mapping, dropping the user key as soon as
// its set empties. Callers hold h.mu.
func (h *Hub) removeLocked(c *Conn) {
	c.state = StateClosed

	set, ok := h.conns[c.userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
}

// confirm marks a connection live again after a pong.
func (h *Hub) confirm(c *Conn) {
	h.mu.Lock()
	if c.state == StateOpen {
		c.confirmed = true
	}
	h.mu.Unlock()
}

// Serve runs the read pump for a connection, blocking until the peer closes
// or errors. Inbound application payloads are discarded; the pump exists to
// process control frames and detect closure.
func (h *Hub) Serve(c *Conn) {
	defer h.Unregister(c)

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Push delivers a notification to every open connection of a user.
// No connections is a silent no-op. The payload is serialized once; write
// failures on individual connections are swallowed, not retried.
func (h *Hub) Push(userID string, view model.NotificationView) {
	frame := model.PushFrame{Type: model.PushFrameType, Notification: view}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("marshal push frame", "error", err)
		return
	}

	h.mu.Lock()
	set := h.conns[userID]
	targets := make([]*Conn, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(data, h.cfg.WriteTimeout); err != nil {
			// Dead or slow peer; the heartbeat sweep will prune it.
			h.logger.Debug("push write failed",
				"user_id", userID,
				"error", err,
			)
		}
	}
}

// Run sweeps the registry until ctx is canceled, then closes every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep terminates connections that never answered the previous probe, then
// marks the survivors unconfirmed and probes them again.
func (h *Hub) sweep() {
	var dead, live []*Conn

	h.mu.Lock()
	for _, set := range h.conns {
		for c := range set {
			if c.confirmed {
				c.confirmed = false
				live = append(live, c)
			} else {
				dead = append(dead, c)
			}
		}
	}
	for _, c := range dead {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	for _, c := range dead {
		h.logger.Info("pruning unresponsive connection", "user_id", c.userID)
		c.closeWith(websocket.CloseGoingAway, "heartbeat timeout")
	}

	for _, c := range live {
		if err := c.ping(h.cfg.WriteTimeout); err != nil {
			h.logger.Debug("ping failed", "user_id", c.userID, "error", err)
		}
	}
}

// closeAll closes every connection during shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	var all []*Conn
	for _, set := range h.conns {
		for c := range set {
			c.state = StateClosed
			all = append(all, c)
		}
	}
	h.conns = make(map[string]map[*Conn]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// Stats returns current occupancy.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{Users: len(h.conns)}
	for _, set := range h.conns {
		s.Conns += len(set)
	}
	return s
}

// UserConns returns the number of open connections for a user.
func (h *Hub) UserConns(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}
