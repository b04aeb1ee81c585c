package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/opsboard/realtime/internal/config"
	"github.com/opsboard/realtime/internal/simulator"
	"github.com/opsboard/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment only when empty)")
	random := flag.Bool("random", false, "simulate resource metrics instead of sampling the host")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting eventsim",
		"version", version.Version,
		"commit", version.Commit,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sampler simulator.Sampler
	if !*random {
		sampler = simulator.NewHostSampler("/")
	}

	simCfg := simulator.DefaultConfig()
	simCfg.Interval = cfg.Simulator.Interval
	simCfg.Token = cfg.Simulator.Token
	sim := simulator.New(simCfg, sampler, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	sim.Routes(r)

	srv := &http.Server{
		Addr:    cfg.Simulator.Addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Simulator.Addr, "auth", cfg.Simulator.Token != "")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sim.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("eventsim failed", "error", err)
		os.Exit(1)
	}

	logger.Info("eventsim stopped")
}
