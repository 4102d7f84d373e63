package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"jobharvest/internal/config"
	"jobharvest/internal/publisher"
	"jobharvest/internal/scheduler"
	"jobharvest/internal/service"
	"jobharvest/internal/source/jobup"
	"jobharvest/internal/storage/sqlstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("harvester failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlstore.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("connected to store", "driver", cfg.Store.Driver)

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	source := jobup.New(jobup.Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		UserAgent:   cfg.API.UserAgent,
		CategoryIDs: cfg.API.CategoryIDs,
	}, logger)

	harvestService := service.NewHarvestService(
		source,
		sqlstore.NewJobStore(db),
		sqlstore.NewCompanyStore(db),
		sqlstore.NewRunStore(db),
		sqlstore.NewTransactionManager(db),
		pub,
		logger,
		cfg.Harvest,
		cfg.API.Rows,
	)

	logger.Info("starting job harvester",
		"source", source.ID(),
		"interval", cfg.Harvest.Interval,
		"categories", len(cfg.API.CategoryIDs),
		"publisher", cfg.RabbitMQ.Enabled,
	)

	return scheduler.NewScheduler(harvestService, cfg.Harvest.Interval, cfg.Harvest.RunTimeout, logger).Start(ctx)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
