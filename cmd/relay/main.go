package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/tjfontaine/agent-stream-relay/internal/agent"
	"github.com/tjfontaine/agent-stream-relay/internal/auth"
	"github.com/tjfontaine/agent-stream-relay/internal/config"
	"github.com/tjfontaine/agent-stream-relay/internal/event"
	"github.com/tjfontaine/agent-stream-relay/internal/relay"
	"github.com/tjfontaine/agent-stream-relay/internal/server"
	"github.com/tjfontaine/agent-stream-relay/internal/storage"
	"github.com/tjfontaine/agent-stream-relay/internal/storage/memory"
	"github.com/tjfontaine/agent-stream-relay/internal/storage/sqldb"
	"github.com/tjfontaine/agent-stream-relay/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.InitTracer("agent-stream-relay", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	configPath := os.Getenv("RELAY_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	runner := newRunner(cfg, logger)

	var authenticator *auth.Authenticator
	if cfg.Auth.Enabled {
		credentials := make([]auth.Credential, 0, len(cfg.Auth.Credentials))
		for _, c := range cfg.Auth.Credentials {
			credentials = append(credentials, auth.Credential{Name: c.Name, KeyHash: c.KeyHash})
		}
		authenticator = auth.NewAuthenticator(credentials)
	}

	srv := server.New(cfg.Server.Port, logger, authenticator)

	// Stream endpoint stays outside the timeout group: streams are as
	// long-lived as the agent turn they relay.
	srv.Router.Handle("/v1/stream", relay.New(runner, store, logger))

	history := relay.NewHistoryHandler(store, logger)
	srv.Router.Group(func(r chi.Router) {
		r.Use(server.TimeoutMiddleware(server.DefaultHistoryTimeout))
		history.Register(r)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("relay shutdown complete")
}

func newStore(cfg *config.Config, logger *slog.Logger) (storage.SessionStore, error) {
	switch cfg.Storage.Type {
	case "memory":
		logger.Info("using in-memory session store")
		return memory.New(), nil
	default:
		path := cfg.Storage.SQLite.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		logger.Info("using sqlite session store", slog.String("path", path))
		return sqldb.New(path)
	}
}

func newRunner(cfg *config.Config, logger *slog.Logger) agent.Runner {
	if cfg.Agent.BaseURL != "" {
		logger.Info("using HTTP agent runner", slog.String("base_url", cfg.Agent.BaseURL))
		return agent.NewHTTPRunner(cfg.Agent.BaseURL)
	}
	// No upstream configured: serve a canned turn so the relay can be
	// exercised end to end during development.
	logger.Warn("agent.base_url not configured, using scripted development runner")
	return agent.NewScripted(
		event.NewResponse("No agent runner is configured. Set agent.base_url to connect one.", nil),
	)
}
