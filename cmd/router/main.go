package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/dispatch"
	"github.com/openclaw/claw-router/internal/gateway"
	"github.com/openclaw/claw-router/internal/obslog"
	"github.com/openclaw/claw-router/internal/prompt"
	"github.com/openclaw/claw-router/internal/telemetry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/router.yaml", "path to router configuration file")
	flag.Parse()

	// Provider API keys usually live in a local .env during development.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configPath, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	if level := parseLogLevel(cfg.Telemetry.LogLevel); level != slog.LevelInfo {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	budgetManager := budget.NewManager(cfg)
	logs := obslog.New(cfg.Logging)
	builder := prompt.NewBuilder(nil, nil, logs)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	var store *telemetry.Store
	if cfg.Telemetry.CommandCenterDB != "" {
		var err error
		store, err = telemetry.OpenStore(cfg.Telemetry.CommandCenterDB)
		if err != nil {
			logger.Warn("telemetry fallback store unavailable", "error", err)
		} else {
			defer store.Close()
		}
	}
	sink := telemetry.NewSink(cfg.Telemetry, store, logger)

	registry := dispatch.BuildFromConfig(cfg)
	loader.OnReload(func() {
		newRegistry := dispatch.BuildFromConfig(loader.Config())
		*registry = *newRegistry
		logger.Info("dispatch registry reloaded")
	})

	handler := gateway.NewHandler(loader.Config, budgetManager, registry, builder, logs, metrics, sink)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Post("/v1/chat/completions", handler.ChatCompletions)
	r.Get("/health", handler.Health)
	r.Get("/ui/health", handler.Health)
	r.Get("/ui/logs", handler.UILogs)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("router starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("router stopped")
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
