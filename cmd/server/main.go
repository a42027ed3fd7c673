package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/da-stoaz/carrera-dash/internal/broadcast"
	"github.com/da-stoaz/carrera-dash/internal/bus"
	"github.com/da-stoaz/carrera-dash/internal/config"
	"github.com/da-stoaz/carrera-dash/internal/coordinator"
	"github.com/da-stoaz/carrera-dash/internal/platform/logging"
	"github.com/da-stoaz/carrera-dash/internal/server"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupBus(cfg *config.Config) *bus.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := bus.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to sensor bus", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	busClient := setupBus(cfg)
	defer func() { _ = busClient.Close() }()

	publisher := bus.NewPublisher(busClient, cfg.TopicRaceStart)
	broadcaster := broadcast.NewBroadcaster(clock, cfg.MaxViewers)
	coord := coordinator.New(clock, publisher, broadcaster)
	listener := bus.NewListener(busClient, clock, cfg.TopicTrack1Finish, cfg.TopicTrack2Finish, coord)

	srv, err := server.NewServer(cfg, coord, busClient)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A lost subscription is not process-fatal: the coordinator has
		// been notified and refuses new starts until the bus is back.
		if err := listener.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Bus listener terminated", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("Server starting", "port", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	coord.Stop()
	broadcaster.Stop()
	slog.Info("Shutdown complete")
}
