package config

import "time"

// Config is the root configuration shared by opsboard and eventsim.
type Config struct {
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Database      DBConfig            `yaml:"database"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Server        ServerConfig        `yaml:"server"`
	Simulator     SimulatorConfig     `yaml:"simulator"`
}

// RealtimeConfig holds the event stream connection settings.
type RealtimeConfig struct {
	WSURL              string        `yaml:"ws_url"`
	Token              string        `yaml:"token"` // Sent as a bearer token on the upgrade request
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`

	// MaxReconnectAttempts is the number of reconnects per cycle before giving
	// up. Unset means DefaultMaxReconnectAttempts, 0 means unlimited.
	MaxReconnectAttempts *int `yaml:"max_reconnect_attempts"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// Attempts returns MaxReconnectAttempts with the default applied.
func (r RealtimeConfig) Attempts() int {
	if r.MaxReconnectAttempts == nil {
		return DefaultMaxReconnectAttempts
	}
	return *r.MaxReconnectAttempts
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds event recorder settings. Requires database.enabled.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// NotificationsConfig holds sinks for connection notifications.
type NotificationsConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds the MQTT notification sink settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// ServerConfig holds the opsboard health/debug HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SimulatorConfig holds eventsim settings.
type SimulatorConfig struct {
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
	Token    string        `yaml:"token"`
}
