package notify

const (
	TopicLowStock           = "inventory.low_stock"
	TopicOrderStatusChanged = "order.status.changed"
	TopicPaymentFailed      = "order.payment.failed"
	TopicPaymentResults     = "payment.results"
)

// Partition key = order_id (or sku for stock events) so events for one
// aggregate keep their ordering.
func PartitionKey(id string) []byte { return []byte(id) }
