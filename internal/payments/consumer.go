package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/nexuscommerce/order-engine/internal/kafka"
	"github.com/nexuscommerce/order-engine/internal/notify"
	"github.com/nexuscommerce/order-engine/internal/redisx"
)

// ResultConsumer applies provider capture outcomes arriving on the
// payment.results topic. Events are deduplicated by event_id in Redis;
// RecordResult is idempotent anyway, so dedup is a cheap short-circuit,
// not a correctness requirement.
type ResultConsumer struct {
	Reconciler  *Reconciler
	Redis       *redis.Client
	ServiceName string
}

// HandleResult is installed as the consumer handler.
func (c *ResultConsumer) HandleResult(ctx context.Context, m kafkago.Message) error {
	var env notify.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != notify.EventPaymentResult {
		return nil // ignore
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, c.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, c.Redis, dkey); exists {
		return nil
	}

	p, err := kafkax.UnwrapPayload[notify.PaymentResultPayload](env.Payload)
	if err != nil {
		return err
	}

	payment, err := c.Reconciler.RecordResult(ctx, p.PaymentID, Result{
		Success:       p.Success,
		ExternalRef:   p.ExternalRef,
		FailureReason: p.FailureReason,
	})
	if err != nil {
		return err
	}
	log.Printf("payment result applied: payment=%s order=%s status=%s",
		payment.ID, payment.OrderID, payment.Status)

	// Mark only after the result is durably applied.
	_ = c.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
