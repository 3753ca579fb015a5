package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Server.ReadLimit < 1 {
		return errors.New("server.read_limit must be >= 1")
	}
	if c.Server.ShutdownGrace < 0 {
		return errors.New("server.shutdown_grace must be >= 0")
	}

	if c.Session.SendBuffer < 1 {
		return errors.New("session.send_buffer must be >= 1")
	}
	if c.Session.WriteWait <= 0 {
		return errors.New("session.write_wait must be > 0")
	}
	if c.Session.PingPeriod <= 0 {
		return errors.New("session.ping_period must be > 0")
	}
	if c.Session.RateBurst < 1 {
		return errors.New("session.rate_burst must be >= 1")
	}
	if c.Session.MaxUsernameLength < 1 {
		return errors.New("session.max_username_length must be >= 1")
	}

	if c.Registry.Shards < 0 {
		return errors.New("registry.shards must be >= 0")
	}

	if c.Cluster.Enabled {
		if c.Cluster.RedisAddr == "" {
			return errors.New("cluster.redis_addr is required when cluster is enabled")
		}
		if c.Cluster.PresenceTTL < 3*time.Second {
			return fmt.Errorf("cluster.presence_ttl must be at least 3s, got %s", c.Cluster.PresenceTTL)
		}
		if c.Cluster.ReconnectBaseDelay <= 0 {
			return errors.New("cluster.reconnect_base_delay must be > 0")
		}
		if c.Cluster.ReconnectMaxDelay < c.Cluster.ReconnectBaseDelay {
			return fmt.Errorf("cluster.reconnect_max_delay must be >= reconnect_base_delay, got %s", c.Cluster.ReconnectMaxDelay)
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level into a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
