package redisx

import "time"

const (
	// Idempotent settlement: idem:checkout:{external_id} -> receipt JSON
	KeyIdemCheckout = "idem:checkout:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
