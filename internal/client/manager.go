package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hirewave/notify/internal/model"
)

// State is the reconnection manager's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ManagerConfig holds reconnection settings.
type ManagerConfig struct {
	Conn Config // per-connection settings

	// Backoff: delay = min(MaxDelay, BaseDelay * 2^attempt). Attempts are
	// unbounded; only the delay is capped.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// OnFrame receives every decoded push frame, in arrival order for any
	// one connection. Required.
	OnFrame func(model.PushFrame)
}

// Manager maintains exactly one desired live connection, reconnecting with
// capped exponential backoff after every failure. At most one retry timer is
// ever pending; scheduling a retry cancels any previous one.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	desired bool
	attempt int
	retry   *time.Timer
	client  *Client
}

// NewManager creates a stopped manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:    cfg,
		logger: logger,
	}
}

// Start arms the manager and begins connecting. No-op when already started.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.desired {
		m.mu.Unlock()
		return
	}
	m.desired = true
	m.attempt = 0
	m.state = StateConnecting
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	go m.connect()
}

// Stop clears the desired flag, closes any open connection, and cancels any
// pending retry. Safe to call at any time, including with no connection.
// This is the only path that durably stops the retry loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.desired = false
	m.state = StateIdle
	m.attempt = 0
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	c := m.client
	m.client = nil
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		c.Close()
	}
}

// State returns the current lifecycle position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the current failure streak length.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// connect performs one connection attempt.
func (m *Manager) connect() {
	m.mu.Lock()
	if !m.desired {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	ctx := m.ctx
	m.mu.Unlock()

	c := NewClient(m.cfg.Conn, m.logger)
	if err := c.Connect(ctx); err != nil {
		m.logger.Warn("connection attempt failed", "error", err)
		m.scheduleRetry()
		return
	}

	m.mu.Lock()
	if !m.desired {
		m.mu.Unlock()
		c.Close()
		return
	}
	m.client = c
	m.state = StateConnected
	m.attempt = 0
	m.mu.Unlock()

	m.logger.Info("live connection established")
	go m.pump(ctx, c)
}

// pump forwards frames until the connection dies, then hands control back
// to the retry loop.
func (m *Manager) pump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-c.Errors():
			m.logger.Warn("live connection lost", "error", err)
			c.Close()

			m.mu.Lock()
			if m.client == c {
				m.client = nil
			}
			m.mu.Unlock()

			m.scheduleRetry()
			return

		case frame, ok := <-c.Frames():
			if !ok {
				return
			}
			m.cfg.OnFrame(frame)
		}
	}
}

// scheduleRetry arms the single retry timer with the next backoff delay.
func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.desired {
		m.state = StateIdle
		return
	}

	m.attempt++
	delay := backoffDelay(m.cfg.BaseDelay, m.cfg.MaxDelay, m.attempt)

	// A superseded timer must never fire after a newer one is scheduled.
	if m.retry != nil {
		m.retry.Stop()
	}
	m.state = StateConnecting
	m.retry = time.AfterFunc(delay, m.connect)

	m.logger.Info("retry scheduled",
		"attempt", m.attempt,
		"delay", delay,
	)
}

// backoffDelay doubles per attempt up to the ceiling.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}
