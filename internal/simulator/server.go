package simulator

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/opsboard/realtime/internal/event"
)

// ErrTooManyClients rejects upgrades once MaxClients are connected.
var ErrTooManyClients = errors.New("maximum clients reached")

// Config configures a Server.
type Config struct {
	Interval     time.Duration // Broadcast period
	Token        string        // Required bearer token; empty disables the check
	MaxClients   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	Seed         uint64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		MaxClients:   100,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is the mock monitoring service.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	gen      *generator
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*client]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// New creates a Server. A nil sampler falls back to random metrics.
func New(cfg Config, sampler Sampler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxClients < 1 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if sampler == nil {
		sampler = NewRandomSampler(cfg.Seed)
	}

	return &Server{
		cfg:    cfg,
		logger: logger.With("component", "simulator"),
		gen:    newGenerator(sampler, cfg.Seed),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
		stop:    make(chan struct{}),
	}
}

// Routes mounts the WebSocket endpoint, at both / and /ws, and a health probe on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.handleWebSocket)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
}

// Run broadcasts simulated events until ctx is cancelled, then closes
// every client connection.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("simulator running", "interval", s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			for _, e := range s.gen.tick() {
				s.Broadcast(e)
			}
		}
	}
}

// Broadcast sends e to every connected client, dropping clients that fail.
func (s *Server) Broadcast(e event.Event) {
	s.clientsMu.RLock()
	if len(s.clients) == 0 {
		s.clientsMu.RUnlock()
		return
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	data, err := event.Encode(e)
	if err != nil {
		s.logger.Error("encode event", "event", e.EventName(), "error", err)
		return
	}

	for _, c := range clients {
		if err := c.write(data, s.cfg.WriteTimeout); err != nil {
			s.logger.Debug("dropping client", "error", err)
			s.remove(c)
			c.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.ClientCount() >= s.cfg.MaxClients {
		http.Error(w, ErrTooManyClients.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
	defer s.remove(c)

	s.logger.Info("client connected", "remote", r.RemoteAddr)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop(c)
	}()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-readDone:
			s.logger.Info("client disconnected", "remote", r.RemoteAddr)
			return
		case <-s.stop:
			c.writeMu.Lock()
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(s.cfg.WriteTimeout),
			)
			c.writeMu.Unlock()
			return
		}
	}
}

// readLoop answers snapshot requests until the connection fails.
func (s *Server) readLoop(c *client) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		env, err := event.DecodeEnvelope(msg)
		if err != nil {
			s.logger.Debug("ignoring client frame", "error", err)
			continue
		}

		var reply event.Event
		switch env.Event {
		case event.RequestMetrics:
			reply = s.gen.metrics()
		case event.RequestServiceHealth:
			reply = s.gen.health()
		default:
			s.logger.Debug("ignoring client event", "event", env.Event)
			continue
		}

		data, err := event.Encode(reply)
		if err != nil {
			s.logger.Error("encode reply", "event", reply.EventName(), "error", err)
			continue
		}
		if err := c.write(data, s.cfg.WriteTimeout); err != nil {
			return
		}
	}
}

func (s *Server) remove(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}

func (s *Server) shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}
