package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerHost        = "0.0.0.0"
	DefaultServerPort        = 8080
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultEventsQueue       = "notification.events"
	DefaultEventsPrefetch    = 50
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
)

func (c *ServiceConfig) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Events defaults
	if c.Events.Queue == "" {
		c.Events.Queue = DefaultEventsQueue
	}
	if c.Events.Prefetch == 0 {
		c.Events.Prefetch = DefaultEventsPrefetch
	}

	// Registry defaults
	if c.Registry.HeartbeatInterval == 0 {
		c.Registry.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Registry.WriteTimeout == 0 {
		c.Registry.WriteTimeout = DefaultWriteTimeout
	}
}
