package realtime

import (
	"log/slog"
	"time"

	"github.com/opsboard/realtime/internal/connection"
	"github.com/opsboard/realtime/internal/notify"
)

// Config configures a Client.
type Config struct {
	Transport            connection.Config
	ReconnectBaseDelay   time.Duration // Base of the exponential backoff
	ReconnectMaxDelay    time.Duration // Cap of the exponential backoff
	MaxReconnectAttempts int           // Attempts per cycle before giving up (0 = unlimited)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Transport:            connection.DefaultConfig(),
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// TransportFactory builds a fresh, unconnected transport for each attempt.
type TransportFactory func() connection.Transport

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier sets the sink for user-visible connection notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithClock replaces the timer source used for reconnect scheduling.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithTransportFactory replaces the WebSocket transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) {
		if f != nil {
			c.newTransport = f
		}
	}
}
