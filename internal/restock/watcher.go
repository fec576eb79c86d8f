package restock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
)

// Watcher consumes settlement events and raises an alert for every product
// a settlement drove to zero stock, so ops can restock before the listing
// stays dark too long.
type Watcher struct {
	Redis       *redis.Client
	Log         zerolog.Logger
	ServiceName string
}

// HandleSettled is wired as the consumer handler.
func (w *Watcher) HandleSettled(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != checkout.EventCheckoutSettled {
		return nil // ignore
	}

	// dedup by event_id so a redelivered event alerts once
	dkey := fmt.Sprintf(redisx.KeyDedup, w.ServiceName, env.EventID)
	exists, _ := redisx.Exists(ctx, w.Redis, dkey)
	if exists {
		return nil
	}
	_ = w.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[checkout.CheckoutSettledPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, sold := range p.SoldOut {
		w.Log.Warn().
			Int64("product_id", sold.ProductID).
			Str("product_name", sold.ProductName).
			Str("order_id", p.OrderID).
			Msg("product sold out, restock needed")
	}
	return nil
}
