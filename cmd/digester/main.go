package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock_digest/internal/config"
	"stock_digest/internal/delivery"
	"stock_digest/internal/digest"
	"stock_digest/internal/lock"
	"stock_digest/internal/news"
	"stock_digest/internal/scheduler"
	"stock_digest/internal/source/finnhub"
	"stock_digest/internal/storage"
	"stock_digest/internal/summarizer"
)

type closingDeliverer interface {
	digest.Deliverer
	io.Closer
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single digest immediately and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if err := cfg.ValidateDigest(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	stores, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	if err := stores.Accounts.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	deliverer, err := newDeliverer(cfg.Delivery, logger)
	if err != nil {
		logger.Error("failed to set up delivery", "mode", cfg.Delivery.Mode, "error", err)
		os.Exit(1)
	}
	defer deliverer.Close()

	source := finnhub.New(finnhub.Config{
		APIKey:         cfg.Finnhub.APIKey,
		Timeout:        cfg.Finnhub.Timeout,
		MaxAttempts:    cfg.Finnhub.Retry.MaxAttempts,
		InitialBackoff: cfg.Finnhub.Retry.InitialBackoff,
		MaxBackoff:     cfg.Finnhub.Retry.MaxBackoff,
	}, logger)

	aggregator := news.NewAggregator(source, news.Config{
		MaxItems:     cfg.News.MaxItems,
		MaxRounds:    cfg.News.MaxRounds,
		Window:       time.Duration(cfg.News.WindowDays) * 24 * time.Hour,
		FetchTimeout: cfg.News.FetchTimeout,
		Concurrency:  cfg.News.Concurrency,
	}, logger)

	sum, err := summarizer.New(summarizer.Config{
		Provider:  cfg.Summarizer.Provider,
		APIKey:    cfg.Summarizer.APIKey,
		Model:     cfg.Summarizer.Model,
		BaseURL:   cfg.Summarizer.BaseURL,
		MaxTokens: cfg.Summarizer.MaxTokens,
	})
	if err != nil {
		logger.Error("failed to set up summarizer", "error", err)
		os.Exit(1)
	}

	orchestrator := digest.NewOrchestrator(
		stores.Accounts,
		stores.Watchlist,
		aggregator,
		sum,
		deliverer,
		logger,
		cfg.Digest,
	)

	locker, closeLock, err := newLocker(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer closeLock()

	runAt, _ := config.ParseRunAt(cfg.Digest.RunAt)
	sched := scheduler.NewScheduler(orchestrator, locker, runAt, cfg.Digest.Location(), cfg.Digest.RunTimeout, logger)

	if *once {
		if _, err := sched.RunOnce(ctx); err != nil {
			logger.Error("digest run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("starting digester",
		"run_at", cfg.Digest.RunAt,
		"timezone", cfg.Digest.Location().String(),
		"delivery", cfg.Delivery.Mode,
		"summarizer", cfg.Summarizer.Provider,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func newDeliverer(cfg config.DeliveryConfig, logger *slog.Logger) (closingDeliverer, error) {
	if cfg.Mode == config.DeliveryRabbitMQ {
		mq, err := delivery.NewRabbitMQ(delivery.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return nil, err
		}
		return mq, nil
	}

	mailer, err := delivery.NewMailer(delivery.MailConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, logger)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

func newLocker(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (scheduler.Locker, func(), error) {
	if cfg.URL == "" {
		logger.Info("redis not configured, running without run lock")
		return lock.Noop{}, func() {}, nil
	}

	client, err := lock.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}

	return lock.NewRedisLock(client, cfg.LockKey, cfg.LockTTL, logger), func() { _ = client.Close() }, nil
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
