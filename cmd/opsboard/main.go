package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsboard/realtime/internal/config"
	"github.com/opsboard/realtime/internal/connection"
	"github.com/opsboard/realtime/internal/database"
	"github.com/opsboard/realtime/internal/event"
	"github.com/opsboard/realtime/internal/notify"
	"github.com/opsboard/realtime/internal/realtime"
	"github.com/opsboard/realtime/internal/recorder"
	"github.com/opsboard/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment only when empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting opsboard",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"ws_url", cfg.Realtime.WSURL,
		"max_reconnect_attempts", cfg.Realtime.Attempts(),
		"recorder", cfg.Recorder.Enabled,
		"mqtt", cfg.Notifications.MQTT.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Notification sinks
	recent := notify.NewRecorder(50)
	sinks := []notify.Notifier{notify.NewLogNotifier(logger), recent}

	if mc := cfg.Notifications.MQTT; mc.Enabled {
		mqtt, err := notify.DialMQTT(notify.MQTTConfig{
			Broker:   mc.Broker,
			Topic:    mc.Topic,
			ClientID: mc.ClientID,
			Username: mc.Username,
			Password: mc.Password,
			QoS:      byte(mc.QoS),
		}, logger)
		if err != nil {
			logger.Error("failed to connect to mqtt broker", "error", err)
			os.Exit(1)
		}
		defer mqtt.Close()
		sinks = append(sinks, mqtt)
	}

	// Database and recorder
	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected")
	}

	// Realtime client
	client := realtime.NewClient(realtimeConfig(cfg.Realtime),
		realtime.WithLogger(logger),
		realtime.WithNotifier(notify.Multi(sinks...)),
	)

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, pool, logger)
		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
		rec.Attach(client)
	}

	watch(client, logger)

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: createHealthHandler(client, rec, pool, recent),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Server.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("opsboard running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)
	if rec != nil {
		rec.Stop(shutdownCtx)
	}
	client.Stop(shutdownCtx)

	logger.Info("opsboard stopped")
}

func realtimeConfig(rc config.RealtimeConfig) realtime.Config {
	tc := connection.DefaultConfig()
	tc.URL = rc.WSURL
	tc.Token = rc.Token
	tc.HandshakeTimeout = rc.HandshakeTimeout
	tc.PingInterval = rc.PingInterval
	tc.PingTimeout = rc.PingTimeout
	tc.BufferSize = rc.BufferSize

	return realtime.Config{
		Transport:            tc,
		ReconnectBaseDelay:   rc.ReconnectBaseDelay,
		ReconnectMaxDelay:    rc.ReconnectMaxDelay,
		MaxReconnectAttempts: rc.Attempts(),
	}
}

// watch logs the events an operator cares about.
func watch(client *realtime.Client, logger *slog.Logger) {
	client.SubscribeToAlerts(func(a event.Alert) {
		logger.Warn("alert",
			"severity", a.Severity,
			"title", a.Title,
			"source", a.Source,
		)
	})

	client.SubscribeToAIPredictions(func(p event.Prediction) {
		logger.Info("root cause prediction",
			"incident", p.IncidentID,
			"cause", p.Cause,
			"confidence", p.Confidence,
		)
	})

	client.SubscribeToAnomalies(func(a event.Anomaly) {
		logger.Info("anomaly detected",
			"metric", a.Metric,
			"value", a.Value,
			"predicted", a.Predicted,
			"severity", a.Severity,
		)
	})

	client.SubscribeToPipeline(func(p event.Pipeline) {
		if p.Status == event.PipelineRunning {
			return
		}
		logger.Info("pipeline finished",
			"name", p.Name,
			"status", p.Status,
			"branch", p.Branch,
		)
	})

	client.SubscribeToServiceHealth(func(h event.Health) {
		for _, svc := range h.Services {
			if svc.Status != event.ServiceHealthy {
				logger.Warn("service unhealthy",
					"service", svc.Name,
					"status", svc.Status,
					"error_rate", svc.ErrorRate,
				)
			}
		}
	})

	client.SubscribeToMetrics(func(m event.Metrics) {
		logger.Debug("metrics",
			"cpu", m.Resource.CPU,
			"memory", m.Resource.Memory,
			"disk", m.Resource.Disk,
		)
	})
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(client *realtime.Client, rec *recorder.Recorder, pool *pgxpool.Pool, recent *notify.Recorder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		state := client.State()
		health.Components["realtime"] = state
		switch state {
		case realtime.StateGaveUp:
			health.Status = "unhealthy"
		case realtime.StateConnected, realtime.StateIdle:
		default:
			health.Status = "degraded"
		}

		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	r.Get("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]any{"realtime": client.Stats()}
		if rec != nil {
			stats["recorder"] = rec.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	r.Get("/debug/notifications", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recent.All())
	})

	return r
}
