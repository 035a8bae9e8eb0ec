package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryveda/gifts-entitlement/internal/app/entitlement"
	"github.com/daryveda/gifts-entitlement/internal/cache"
	"github.com/daryveda/gifts-entitlement/internal/config"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/rabbitmq"
	"github.com/daryveda/gifts-entitlement/internal/services"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting payment-processor", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := entitlement.NewStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Error("failed to connect to Redis", sl.Err(err))
		os.Exit(1)
	}

	ledgerService := services.NewLedgerService(store, cacheRedis, logger)

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.ConnectRetries, cfg.ConnectDelay)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("connected to RabbitMQ", slog.String("URL", cfg.RabbitMQURL))
	defer func() {
		_ = conn.Close()
	}()

	ch, err := rabbitmq.SetupChannel(conn, cfg.PrefetchWorkers, rabbitmq.GetPaymentQueues())
	if err != nil {
		logger.Error("failed to setup RabbitMQ channel", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = ch.Close()
	}()

	handler := rabbitmq.NewPaymentHandler(logger, ledgerService)
	err = rabbitmq.ConsumerMessage(ctx, ch, rabbitmq.PaymentsConfirmedQueue, cfg.PrefetchWorkers, handler.HandleMessage)
	if err != nil {
		logger.Error("failed to start consumer", sl.Err(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("payment-processor shutting down gracefully")
}
