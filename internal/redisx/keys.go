package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{user_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Order cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Low stock alert raised: lowstock:{service}:{TYPE/NAME}
	KeyLowStock = "lowstock:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
