package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nudge/internal/amqp"
	"nudge/internal/config"
	apphttp "nudge/internal/http"
	applog "nudge/internal/log"
	"nudge/internal/notify"
	"nudge/internal/services"
	"nudge/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting nudge server")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	// AMQP is optional; without it checks run inline on the worker only.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	dispatcher := buildDispatcher(cfg, logger)
	suppressor := buildSuppressor(cfg, logger)

	svc := services.NewAlertService(repo, amqpClient, dispatcher, suppressor)
	defer svc.Close()

	srv := apphttp.NewServer(":"+cfg.Port, svc)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting nudge server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

func buildDispatcher(cfg *config.Config, logger *applog.Logger) notify.Dispatcher {
	if cfg.GmailSender == "" {
		logger.Info("Gmail disabled - alerts will be logged only")
		return notify.LogDispatcher{}
	}
	d, err := notify.NewGmailFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Gmail dispatcher", "error", err)
		os.Exit(1)
	}
	logger.Info("Gmail dispatcher initialized", "sender", cfg.GmailSender)
	return d
}

func buildSuppressor(cfg *config.Config, logger *applog.Logger) *notify.Suppressor {
	if cfg.RedisURL == "" {
		logger.Info("Redis disabled - alert suppression off, every check may dispatch")
		return nil
	}
	s, err := notify.NewSuppressor(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to initialize Redis suppressor", "error", err)
		os.Exit(1)
	}
	logger.Info("Redis suppressor initialized")
	return s
}
