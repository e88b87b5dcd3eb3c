package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hourlog/internal/amqp"
	"hourlog/internal/config"
	applog "hourlog/internal/log"
	"hourlog/internal/sheets"
	gsheet "hourlog/internal/sheets/google"
	mem "hourlog/internal/sheets/memory"
	"hourlog/internal/storage"
	"hourlog/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	base := applog.New(applog.DefaultConfig())
	applog.SetDefault(base)
	logger := base.WithComponent(applog.ComponentWorker)

	logger.Info("Starting hourlog-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the backup worker")
		os.Exit(1)
	}

	// SQLite repository: the worker re-reads days from here on every
	// notification, so replayed messages converge on current state.
	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	// Backup target: Google Sheets when configured, otherwise an in-memory
	// store so local development exercises the same code path.
	var backup sheets.BackupWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		backup = client
		logger.Info("Google Sheets backup enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	} else {
		backup = mem.New()
		logger.Info("Google Sheets disabled - using in-memory backup store")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backupWorker := worker.NewBackupWorker(sqliteRepo, backup)

	// Catch up on anything written while the worker was down.
	logger.Info("Performing startup backup check...", "user_id", cfg.DefaultUser)
	if err := backupWorker.BackupAll(ctx, cfg.DefaultUser); err != nil {
		logger.Error("Startup backup check failed", "error", err)
		// Don't exit - notifications will converge the backup over time.
	}

	go func() {
		if err := amqpClient.ConsumeEntryChanged(ctx, backupWorker.HandleEntryChanged); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
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

	// Give in-flight handlers a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
