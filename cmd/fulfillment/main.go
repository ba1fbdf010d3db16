package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lojabr/checkout-core/internal/config"
	"github.com/lojabr/checkout-core/internal/fulfillment"
	kafkax "github.com/lojabr/checkout-core/internal/kafka"
	"github.com/lojabr/checkout-core/internal/logging"
	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/postgres"
	"github.com/lojabr/checkout-core/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.ServiceName+"-fulfillment")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The consumer only runs guarded status updates; a handful of
	// connections is plenty.
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	ordersSvc := &orders.Service{
		Store:    &orders.Repo{DB: db},
		Events:   prod,
		Producer: cfg.ServiceName + "-fulfillment",
		Log:      logger,
		Retries:  cfg.WriteRetries,
	}

	svc := &fulfillment.Service{
		Orders:      ordersSvc,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-fulfillment",
		Log:         logger,
	}

	group := getenv("FULFILLMENT_GROUP", "fulfillment-svc")
	workers := mustAtoi(os.Getenv("FULFILLMENT_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderPaid, workers, logger)

	go func() {
		logger.Info("consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicOrderPaid),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleOrderPaid); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
