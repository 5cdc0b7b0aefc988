package notify

import (
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/nexuscommerce/order-engine/internal/kafka"
)

// Notifier delivers fire-and-forget events to the notification
// collaborator. Delivery is best-effort and must never block the caller.
type Notifier interface {
	LowStock(sku string, remaining int)
	OrderStatusChanged(orderID, status string)
	PaymentFailed(orderID, reason string)
}

// Noop discards everything; used in tests and minimal wiring.
type Noop struct{}

func (Noop) LowStock(string, int)              {}
func (Noop) OrderStatusChanged(string, string) {}
func (Noop) PaymentFailed(string, string)      {}

// Kafka publishes each event kind to its own topic through the async
// producers; Publish only enqueues, the producer loop does the I/O.
type Kafka struct {
	LowStockProducer    *kafkax.Producer
	OrderStatusProducer *kafkax.Producer
	PaymentFailProducer *kafkax.Producer
	ServiceName         string
}

func (k *Kafka) publish(p *kafkax.Producer, eventType, key string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      k.ServiceName,
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (k *Kafka) LowStock(sku string, remaining int) {
	k.publish(k.LowStockProducer, EventLowStock, sku,
		LowStockPayload{SKU: sku, Remaining: remaining})
}

func (k *Kafka) OrderStatusChanged(orderID, status string) {
	k.publish(k.OrderStatusProducer, EventOrderStatusChanged, orderID,
		OrderStatusChangedPayload{OrderID: orderID, Status: status})
}

func (k *Kafka) PaymentFailed(orderID, reason string) {
	k.publish(k.PaymentFailProducer, EventPaymentFailed, orderID,
		PaymentFailedPayload{OrderID: orderID, Reason: reason})
}
