package redisx

import "time"

const (
	// Checkout idempotency fast path: idem:checkout:create:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:checkout:create:%s"

	// Order status cache: order:status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order:status:%s"

	// Webhook dedup fast path: webhook:seen:{event_id}
	KeyWebhookSeen = "webhook:seen:%s"

	// Consumer dedup: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLWebhookSeen = 48 * time.Hour
	TTLDedup       = 48 * time.Hour
)
