package config

import "time"

// Config is the root configuration for a relay node.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Registry RegistryConfig `yaml:"registry"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the HTTP listener and websocket upgrade settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	UsernameParam  string        `yaml:"username_param"`
	ReadLimit      int64         `yaml:"read_limit"`
	OriginPatterns []string      `yaml:"origin_patterns"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// SessionConfig holds per-connection limits.
type SessionConfig struct {
	SendBuffer        int           `yaml:"send_buffer"`
	WriteWait         time.Duration `yaml:"write_wait"`
	PingPeriod        time.Duration `yaml:"ping_period"`
	RateLimit         float64       `yaml:"rate_limit"` // frames per second, negative disables
	RateBurst         int           `yaml:"rate_burst"`
	MaxUsernameLength int           `yaml:"max_username_length"`
}

// RegistryConfig tunes the connection registry.
type RegistryConfig struct {
	Shards int `yaml:"shards"` // 0 means one per CPU
}

// ClusterConfig enables cross-node routing through Redis.
type ClusterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	NodeID        string        `yaml:"node_id"` // generated when empty
	KeyPrefix     string        `yaml:"key_prefix"`
	PresenceTTL   time.Duration `yaml:"presence_ttl"`

	// Resubscribe backoff after the Redis connection drops.
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}
