package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lojabr/checkout-core/internal/auth"
	"github.com/lojabr/checkout-core/internal/checkout"
	"github.com/lojabr/checkout-core/internal/config"
	"github.com/lojabr/checkout-core/internal/fees"
	"github.com/lojabr/checkout-core/internal/httpx"
	kafkax "github.com/lojabr/checkout-core/internal/kafka"
	"github.com/lojabr/checkout-core/internal/logging"
	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/payments"
	"github.com/lojabr/checkout-core/internal/postgres"
	"github.com/lojabr/checkout-core/internal/redisx"
	"github.com/lojabr/checkout-core/internal/stock"
	"github.com/lojabr/checkout-core/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.Env, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns))
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	ledger := stock.NewLedger(
		&stock.PGProductStore{DB: db},
		&stock.PGReservationStore{DB: db},
	)
	ledger.MaxRetries = cfg.WriteRetries

	calc := fees.NewCalculator(nil)
	gateway := payments.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, logger)

	svc := &orders.Service{
		Store:    &orders.Repo{DB: db},
		Ledger:   ledger,
		Gateway:  gateway,
		Fees:     calc,
		Snap:     &checkout.Snapshotter{Ledger: ledger, Fees: calc},
		Events:   prod,
		Producer: cfg.ServiceName,
		Log:      logger,
		Retries:  cfg.WriteRetries,
	}

	reconciler := &webhook.Reconciler{
		Secret: []byte(cfg.WebhookSecret),
		Events: &webhook.PGEventStore{DB: db},
		Cache:  redisx.NewWebhookSeenCache(rdb),
		Orders: svc,
		Log:    logger,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Service: svc, Redis: rdb}
	ph := &httpx.PaymentsHandler{Service: svc, Fees: calc, Reconciler: reconciler}
	ah := &httpx.AdminHandler{Ledger: ledger, Service: svc}

	ph.RegisterPublic(router)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware([]byte(cfg.JWTSecret)))
		oh.Register(r)
		ph.Register(r)
		r.Group(func(admin chi.Router) {
			admin.Use(auth.RequireAdmin)
			ah.Register(admin)
		})
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
}
