package redisx

import "time"

const (
	// Dedup for consumed provider result events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Read cache for order status: order_status:{order_id}
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
