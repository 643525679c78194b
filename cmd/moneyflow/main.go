package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneyflow/internal/amqp"
	"moneyflow/internal/backend"
	"moneyflow/internal/cli"
	"moneyflow/internal/config"
	apphttp "moneyflow/internal/http"
	"moneyflow/internal/log"
	"moneyflow/internal/middleware/security"
	"moneyflow/internal/services"
)

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentApp)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.GracefulShutdown(context.Background(), logger)
	defer stop()

	res, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer cli.RunCleanup(logger, "store", 5*time.Second, func(context.Context) error { return res.Cleanup() })

	// Transactions created by the cron endpoint are announced to the sync
	// worker; without AMQP the worker's pending sweep picks them up.
	var publisher services.EventPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - transactions will not sync to Google Sheets")
	}

	processor := services.NewRecurringProcessor(res.Store, services.NewTransactionService(res.Store, publisher), logger)

	proxies, err := security.ParseCIDRs(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET is empty, protected endpoints reject every request")
	}
	srv := apphttp.NewServer(processor, res.Store, apphttp.Options{
		Addr:               ":" + cfg.Port,
		CronSecret:         cfg.CronSecret,
		Location:           cfg.Location(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		FeedCacheSize:      cfg.FeedCacheSize,
		FeedCacheTTL:       cfg.FeedCacheTTL,
		RunTimeout:         cfg.RecurringRunTimeout,
		TrustedProxies:     proxies,
		Logger:             logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting moneyflow server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"timezone", cfg.CronTimezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
