package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hirewave/notify/internal/auth"
	"github.com/hirewave/notify/internal/builder"
	"github.com/hirewave/notify/internal/config"
	"github.com/hirewave/notify/internal/database"
	"github.com/hirewave/notify/internal/events"
	"github.com/hirewave/notify/internal/registry"
	"github.com/hirewave/notify/internal/server"
	"github.com/hirewave/notify/internal/store"
	"github.com/hirewave/notify/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/notifier.yaml", "path to config file")
	flag.Parse()

	// Local development keeps secrets in .env; absence is fine.
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting notifier",
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
		"instance_id", cfg.Instance.ID,
		"listen", cfg.Server.Host, "port", cfg.Server.Port,
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

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool, logger)
	if err := st.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	// Live connection registry with the heartbeat sweeper
	hub := registry.NewHub(registry.Config{
		HeartbeatInterval: cfg.Registry.HeartbeatInterval,
		WriteTimeout:      cfg.Registry.WriteTimeout,
	}, logger)
	go hub.Run(ctx)

	var signer builder.MediaSigner
	if cfg.Media.BaseURL != "" {
		signer = &builder.BaseURLSigner{BaseURL: cfg.Media.BaseURL}
	}
	b := builder.New(st, signer, hub, logger)

	// Event ingress; disabled when no broker URL is configured
	if cfg.Events.URL != "" {
		consumer, err := events.NewConsumer(events.Config{
			URL:      cfg.Events.URL,
			Queue:    cfg.Events.Queue,
			Prefetch: cfg.Events.Prefetch,
		}, b, logger)
		if err != nil {
			logger.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("event consumer stopped", "error", err)
				cancel()
			}
		}()
	} else {
		logger.Warn("event ingress disabled: no broker url configured")
	}

	authn := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret)
	srv := server.New(cfg.Server, st, b, hub, authn, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}
