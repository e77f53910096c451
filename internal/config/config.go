package config

import "time"

// ServiceConfig is the root configuration for a notifier instance.
type ServiceConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Database DBConfig       `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Events   EventsConfig   `yaml:"events"`
	Registry RegistryConfig `yaml:"registry"`
	Media    MediaConfig    `yaml:"media"`
}

// InstanceConfig identifies this notifier.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig holds the Postgres connection for notification records.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// EventsConfig holds the RabbitMQ ingress settings. An empty URL disables
// the consumer (notifications can still be created via internal callers).
type EventsConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// RegistryConfig holds live-connection registry settings.
type RegistryConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// MediaConfig holds avatar URL resolution settings.
type MediaConfig struct {
	BaseURL string `yaml:"base_url"`
}
