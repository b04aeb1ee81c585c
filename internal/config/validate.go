package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Realtime.validate(); err != nil {
		return err
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Recorder.Enabled {
		if !c.Database.Enabled {
			return errors.New("recorder.enabled requires database.enabled")
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.FlushInterval <= 0 {
			return errors.New("recorder.flush_interval must be positive")
		}
	}

	if mqtt := c.Notifications.MQTT; mqtt.Enabled {
		if mqtt.Broker == "" {
			return errors.New("notifications.mqtt.broker is required")
		}
		if mqtt.QoS < 0 || mqtt.QoS > 2 {
			return fmt.Errorf("notifications.mqtt.qos must be 0, 1 or 2, got %d", mqtt.QoS)
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Simulator.Interval <= 0 {
		return errors.New("simulator.interval must be positive")
	}

	return nil
}

func (r *RealtimeConfig) validate() error {
	u, err := url.Parse(r.WSURL)
	if err != nil {
		return fmt.Errorf("realtime.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("realtime.ws_url must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("realtime.ws_url must include a host")
	}
	if r.ReconnectBaseDelay <= 0 {
		return errors.New("realtime.reconnect_base_delay must be positive")
	}
	if r.ReconnectMaxDelay < r.ReconnectBaseDelay {
		return fmt.Errorf("realtime.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			r.ReconnectMaxDelay, r.ReconnectBaseDelay)
	}
	if r.Attempts() < 0 {
		return errors.New("realtime.max_reconnect_attempts must be >= 0")
	}
	if r.PingTimeout <= r.PingInterval {
		return fmt.Errorf("realtime.ping_timeout (%v) must exceed ping_interval (%v)",
			r.PingTimeout, r.PingInterval)
	}
	if r.BufferSize < 1 {
		return errors.New("realtime.buffer_size must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
