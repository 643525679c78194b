package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"moneyflow/internal/amqp"
	"moneyflow/internal/backend"
	"moneyflow/internal/cli"
	"moneyflow/internal/config"
	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/scheduler"
	"moneyflow/internal/services"
)

const jobName = "recurring-transactions"

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentScheduler)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	logger.Info("Starting recurring-worker")
	if err := run(cfg, logger); err != nil {
		logger.Error("Recurring-worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.GracefulShutdown(context.Background(), logger)
	defer stop()

	res, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer cli.RunCleanup(logger, "store", 5*time.Second, func(context.Context) error { return res.Cleanup() })

	var publisher services.EventPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized - transactions will sync via sync-worker")
		}
	} else {
		logger.Info("AMQP disabled - transactions will not sync to Google Sheets")
	}

	processor := services.NewRecurringProcessor(res.Store, services.NewTransactionService(res.Store, publisher), logger)
	loc := cfg.Location()
	job := func(ctx context.Context) error {
		today := core.Today(loc)
		summary, err := processor.Run(ctx, today)
		if err != nil {
			return err
		}
		if len(summary.Errors) > 0 {
			logger.WarnContext(ctx, "Recurring run finished with errors",
				log.FieldDate, today.String(), log.FieldFailed, len(summary.Errors))
		}
		return nil
	}

	sched := scheduler.New(loc, cfg.RecurringRunTimeout, logger)

	// Catch up on today only; missed days are never back-filled.
	logger.Info("Running initial recurring transaction processing...")
	if err := sched.RunNow(ctx, jobName, job); err != nil {
		logger.Error("Initial processing failed", log.FieldError, err)
	}

	id, err := sched.Add(jobName, cfg.RecurringSchedule, job)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	logger.Info("Recurring transaction processor configured",
		"schedule", cfg.RecurringSchedule,
		"timezone", loc.String(),
		"next_run", sched.Next(id).Format(time.RFC3339))

	<-ctx.Done()
	logger.Info("Shutting down recurring-worker...")
	cli.RunCleanup(logger, "scheduler", 30*time.Second, sched.Stop)
	return nil
}
