package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nexuscommerce/order-engine/internal/catalog"
	"github.com/nexuscommerce/order-engine/internal/checkout"
	"github.com/nexuscommerce/order-engine/internal/config"
	"github.com/nexuscommerce/order-engine/internal/httpx"
	"github.com/nexuscommerce/order-engine/internal/inventory"
	kafkax "github.com/nexuscommerce/order-engine/internal/kafka"
	"github.com/nexuscommerce/order-engine/internal/notify"
	"github.com/nexuscommerce/order-engine/internal/orders"
	"github.com/nexuscommerce/order-engine/internal/payments"
	"github.com/nexuscommerce/order-engine/internal/postgres"
	"github.com/nexuscommerce/order-engine/internal/pricing"
	"github.com/nexuscommerce/order-engine/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per notification topic
	pLow := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicLowStock, 1024)
	pLow.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicOrderStatusChanged, 1024)
	pStatus.Start(ctx)
	pFail := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicPaymentFailed, 1024)
	pFail.Start(ctx)

	notifier := &notify.Kafka{
		LowStockProducer:    pLow,
		OrderStatusProducer: pStatus,
		PaymentFailProducer: pFail,
		ServiceName:         cfg.ServiceName,
	}

	// Engine
	ledger := &inventory.PostgresLedger{DB: db, OnLowStock: notifier.LowStock}
	orderSvc := orders.NewService(&orders.PostgresStore{DB: db})
	orderSvc.OnStatusChange = func(orderID string, status orders.Status) {
		notifier.OrderStatusChanged(orderID, string(status))
	}

	provider := payments.NewHTTPProvider(cfg.PaymentProviderURL)
	reconciler := payments.NewReconciler(&payments.PostgresStore{DB: db}, orderSvc, provider)
	reconciler.OnPaymentFailed = notifier.PaymentFailed

	engine := &checkout.Coordinator{
		Ledger:     ledger,
		Catalog:    &catalog.Postgres{DB: db},
		Orders:     orderSvc,
		Reconciler: reconciler,
		Policy: pricing.StandardPolicy{
			TaxRate:        cfg.TaxRate,
			ShippingFlat:   cfg.ShippingFlat,
			FreeShippingAt: cfg.FreeShippingAt,
		},
	}

	// HTTP
	router := httpx.NewRouter()
	h := &httpx.EngineHandler{Engine: engine, Reconciler: reconciler, Redis: rdb}
	h.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop producer loops; they flush and close
	pLow.WaitClosed()
	pStatus.WaitClosed()
	pFail.WaitClosed()
}
