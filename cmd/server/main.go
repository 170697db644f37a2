// Package main provides the entry point for the GenBridge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/genbridge-api/internal/bootstrap"
	"github.com/maauso/genbridge-api/internal/config"
	"github.com/maauso/genbridge-api/internal/server"
)

// minWriteTimeout covers uploads and mirroring on top of the vendor poll budget.
const minWriteTimeout = 300 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting GenBridge API",
		slog.Int("port", cfg.Port),
		slog.String("app_env", cfg.AppEnv),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.Duration("poll_budget", cfg.PollBudget()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("postgres_enabled", cfg.PostgresEnabled()),
		slog.Bool("redis_enabled", cfg.RedisEnabled()),
	)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := bootstrap.NewDependencies(initCtx, cfg, logger)
	cancelInit()
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Service, logger, server.WithMaxUploadBytes(cfg.MaxUploadBytes))
	router := server.NewRouter(handlers, deps.Auth, logger, server.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		Files:          deps.Files,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: max(minWriteTimeout, cfg.PollBudget()+time.Minute), // Synchronous routes hold the connection while polling
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		_ = deps.Close(context.Background())
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	shutdownErr := srv.Shutdown(ctx)
	if err := deps.Close(ctx); err != nil {
		logger.Warn("dependencies did not close cleanly",
			slog.String("error", err.Error()),
		)
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown failed: %w", shutdownErr)
	}

	logger.Info("server stopped gracefully")
	return nil
}
