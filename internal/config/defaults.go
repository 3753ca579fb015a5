package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr              = ":8080"
	DefaultUsernameParam     = "username"
	DefaultReadLimit         = 64 << 10
	DefaultShutdownGrace     = 10 * time.Second
	DefaultSendBuffer        = 256
	DefaultWriteWait         = 5 * time.Second
	DefaultPingPeriod        = 15 * time.Second
	DefaultRateLimit         = 20
	DefaultRateBurst         = 40
	DefaultMaxUsernameLength = 64
	DefaultRedisAddr         = "localhost:6379"
	DefaultKeyPrefix         = "relay"
	DefaultPresenceTTL       = 60 * time.Second
	DefaultReconnectBase     = 1 * time.Second
	DefaultReconnectMax      = 30 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.UsernameParam == "" {
		c.Server.UsernameParam = DefaultUsernameParam
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = DefaultShutdownGrace
	}

	// Session defaults
	if c.Session.SendBuffer == 0 {
		c.Session.SendBuffer = DefaultSendBuffer
	}
	if c.Session.WriteWait == 0 {
		c.Session.WriteWait = DefaultWriteWait
	}
	if c.Session.PingPeriod == 0 {
		c.Session.PingPeriod = DefaultPingPeriod
	}
	if c.Session.RateLimit == 0 {
		c.Session.RateLimit = DefaultRateLimit
	}
	if c.Session.RateBurst == 0 {
		c.Session.RateBurst = DefaultRateBurst
	}
	if c.Session.MaxUsernameLength == 0 {
		c.Session.MaxUsernameLength = DefaultMaxUsernameLength
	}

	// Cluster defaults
	if c.Cluster.RedisAddr == "" {
		c.Cluster.RedisAddr = DefaultRedisAddr
	}
	if c.Cluster.KeyPrefix == "" {
		c.Cluster.KeyPrefix = DefaultKeyPrefix
	}
	if c.Cluster.PresenceTTL == 0 {
		c.Cluster.PresenceTTL = DefaultPresenceTTL
	}
	if c.Cluster.ReconnectBaseDelay == 0 {
		c.Cluster.ReconnectBaseDelay = DefaultReconnectBase
	}
	if c.Cluster.ReconnectMaxDelay == 0 {
		c.Cluster.ReconnectMaxDelay = DefaultReconnectMax
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
