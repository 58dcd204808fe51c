package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nudge/internal/amqp"
	"nudge/internal/config"
	applog "nudge/internal/log"
	"nudge/internal/notify"
	"nudge/internal/services"
	"nudge/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.Config{Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting nudge-worker")

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

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if cfg.GmailSender != "" {
		dispatcher, err = notify.NewGmailFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Gmail dispatcher", "error", err)
			os.Exit(1)
		}
		logger.Info("Gmail dispatcher initialized", "sender", cfg.GmailSender)
	} else {
		logger.Info("Gmail disabled - alerts will be logged only")
	}

	var suppressor *notify.Suppressor
	if cfg.RedisURL != "" {
		suppressor, err = notify.NewSuppressor(cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to initialize Redis suppressor", "error", err)
			os.Exit(1)
		}
		logger.Info("Redis suppressor initialized")
	} else {
		logger.Info("Redis disabled - alert suppression off, every check may dispatch")
	}

	// The worker never publishes, so it gets no AMQP client in the service.
	svc := services.NewAlertService(repo, nil, dispatcher, suppressor)
	defer svc.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume queued checks if AMQP is configured.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			if err := amqpClient.ConsumeAlertChecks(ctx, func(msg *amqp.AlertCheckMessage) error {
				return svc.HandleCheckMessage(ctx, msg)
			}); err != nil {
				if err != context.Canceled {
					logger.Error("Message consumption failed", "error", err)
				}
				cancel()
			}
		}()
		logger.Info("Consuming alert checks", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - relying on the periodic sweep only")
	}

	// Periodic sweep catches users whose checks were never queued, including
	// spend that crept up without new transactions (e.g. after limit changes).
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := svc.SweepAll(ctx, time.Now(), cfg.SweepConcurrency)
				if err != nil {
					logger.Error("Sweep failed", "error", err)
					continue
				}
				logger.Info("Sweep finished",
					"users", stats.Users,
					"sent", stats.Sent,
					"suppressed", stats.Suppressed,
					"failed", stats.Failed)
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give in-flight checks a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
