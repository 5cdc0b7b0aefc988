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

	"github.com/nexuscommerce/order-engine/internal/config"
	kafkax "github.com/nexuscommerce/order-engine/internal/kafka"
	"github.com/nexuscommerce/order-engine/internal/notify"
	"github.com/nexuscommerce/order-engine/internal/orders"
	"github.com/nexuscommerce/order-engine/internal/payments"
	"github.com/nexuscommerce/order-engine/internal/postgres"
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
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producers for events this worker emits
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicOrderStatusChanged, 1024)
	pStatus.Start(ctx)
	pFail := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicPaymentFailed, 1024)
	pFail.Start(ctx)

	notifier := &notify.Kafka{
		OrderStatusProducer: pStatus,
		PaymentFailProducer: pFail,
		ServiceName:         cfg.ServiceName + "-payments",
	}

	orderSvc := orders.NewService(&orders.PostgresStore{DB: db})
	orderSvc.OnStatusChange = func(orderID string, status orders.Status) {
		notifier.OrderStatusChanged(orderID, string(status))
	}

	provider := payments.NewHTTPProvider(cfg.PaymentProviderURL)
	reconciler := payments.NewReconciler(&payments.PostgresStore{DB: db}, orderSvc, provider)
	reconciler.OnPaymentFailed = notifier.PaymentFailed

	sink := &payments.ResultConsumer{
		Reconciler:  reconciler,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-payments",
	}

	group := getenv("PAYMENTS_GROUP", "payments-svc")
	workers := mustAtoi(os.Getenv("PAYMENTS_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, notify.TopicPaymentResults, workers)

	go func() {
		log.Printf("payments consumer started: group=%s topic=%s workers=%d",
			group, notify.TopicPaymentResults, workers)
		if err := cons.Start(ctx, sink.HandleResult); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	pStatus.WaitClosed()
	pFail.WaitClosed()
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
