package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL                = "ws://localhost:3000"
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 20 * time.Second
	DefaultPingInterval         = 25 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultFrameBufferSize      = 1000
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultMQTTTopic            = "opsboard/notifications"
	DefaultMQTTClientID         = "opsboard"
	DefaultServerPort           = 9090
	DefaultSimulatorAddr        = ":3000"
	DefaultSimulatorInterval    = 5 * time.Second
)

func (c *Config) applyDefaults() {
	// Realtime defaults
	if c.Realtime.WSURL == "" {
		c.Realtime.WSURL = DefaultWSURL
	}
	if c.Realtime.ReconnectBaseDelay == 0 {
		c.Realtime.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Realtime.ReconnectMaxDelay == 0 {
		c.Realtime.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Realtime.MaxReconnectAttempts == nil {
		n := DefaultMaxReconnectAttempts
		c.Realtime.MaxReconnectAttempts = &n
	}
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = DefaultPingInterval
	}
	if c.Realtime.PingTimeout == 0 {
		c.Realtime.PingTimeout = DefaultPingTimeout
	}
	if c.Realtime.BufferSize == 0 {
		c.Realtime.BufferSize = DefaultFrameBufferSize
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

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}

	// Notification defaults
	if c.Notifications.MQTT.Topic == "" {
		c.Notifications.MQTT.Topic = DefaultMQTTTopic
	}
	if c.Notifications.MQTT.ClientID == "" {
		c.Notifications.MQTT.ClientID = DefaultMQTTClientID
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	// Simulator defaults
	if c.Simulator.Addr == "" {
		c.Simulator.Addr = DefaultSimulatorAddr
	}
	if c.Simulator.Interval == 0 {
		c.Simulator.Interval = DefaultSimulatorInterval
	}
}
