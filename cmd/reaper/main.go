package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nexuscommerce/order-engine/internal/checkout"
	"github.com/nexuscommerce/order-engine/internal/config"
	"github.com/nexuscommerce/order-engine/internal/inventory"
	kafkax "github.com/nexuscommerce/order-engine/internal/kafka"
	"github.com/nexuscommerce/order-engine/internal/notify"
	"github.com/nexuscommerce/order-engine/internal/orders"
	"github.com/nexuscommerce/order-engine/internal/postgres"
	"github.com/nexuscommerce/order-engine/internal/reaper"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicOrderStatusChanged, 256)
	pStatus.Start(ctx)
	notifier := &notify.Kafka{
		OrderStatusProducer: pStatus,
		ServiceName:         cfg.ServiceName + "-reaper",
	}

	orderSvc := orders.NewService(&orders.PostgresStore{DB: db})
	orderSvc.OnStatusChange = func(orderID string, status orders.Status) {
		notifier.OrderStatusChanged(orderID, string(status))
	}

	engine := &checkout.Coordinator{
		Ledger: &inventory.PostgresLedger{DB: db},
		Orders: orderSvc,
	}

	r := &reaper.Reaper{
		Orders:   orderSvc,
		Cancel:   engine.CancelOrder,
		TTL:      cfg.PendingOrderTTL,
		Interval: cfg.ReaperInterval,
	}

	go r.Run(ctx)
	log.Printf("reaper started: ttl=%s interval=%s", cfg.PendingOrderTTL, cfg.ReaperInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down reaper...")
	cancel()
	pStatus.WaitClosed()
}
