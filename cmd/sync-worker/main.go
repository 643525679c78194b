package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneyflow/internal/amqp"
	"moneyflow/internal/backend"
	"moneyflow/internal/cli"
	"moneyflow/internal/config"
	"moneyflow/internal/log"
	"moneyflow/internal/services"
	gsheet "moneyflow/internal/sheets/google"
	"moneyflow/internal/worker"
)

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentWorker)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	logger.Info("Starting sync-worker")
	if err := run(cfg, logger); err != nil {
		logger.Error("Sync-worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(cfg *config.Config, logger *log.Logger) error {
	if !cfg.AMQPEnabled() {
		return errors.New("AMQP_URL is required for the sync worker")
	}
	if !cfg.SheetsEnabled() {
		return errors.New("GOOGLE_SPREADSHEET_ID is required for the sync worker")
	}

	ctx, stop := cli.GracefulShutdown(context.Background(), logger)
	defer stop()

	res, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer cli.RunCleanup(logger, "store", 5*time.Second, func(context.Context) error { return res.Cleanup() })

	sheetsClient, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(res.Store, sheetsClient, cfg.SyncBatchSize)

	// Rows created while the worker was down never produced a message.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	sweeper := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{PollInterval: cfg.SyncInterval}, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeTransactionCreated(gctx, syncWorker.HandleTransactionCreated)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err := sweeper.Start(gctx); err != nil {
		return err
	}

	err = g.Wait()
	logger.Info("Shutting down worker...")
	cli.RunCleanup(logger, "sync processor", 30*time.Second, sweeper.Stop)
	stats := sweeper.Stats()
	logger.Info("Pending sweeps finished", "sweeps", stats.Sweeps, "synced", stats.Synced, "failures", stats.Failures)
	return err
}
