package eventing

import (
	"context"
	"fmt"
	"time"

	"royalty-engine/internal/observability/metrics"
)

// ProcessedStore records which envelopes a consumer has already handled.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers handler for eventType under consumerName. With a
// non-nil store each envelope is handled at most once per consumer.
func Subscribe(bus Subscriber, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store != nil {
		handler = Idempotent(consumerName, handler, store)
	}
	bus.Subscribe(eventType, handler)
}

// Idempotent skips envelopes consumerName has already processed and marks an
// envelope processed only after handler succeeds, so failures are redelivered.
// Events published without an envelope pass straight through.
func Idempotent(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		done, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return fmt.Errorf("eventing: %s: check processed: %w", consumerName, err)
		}
		if done {
			return nil
		}
		if !env.OccurredAt.IsZero() {
			metrics.ObserveConsumerLag(consumerName, time.Since(env.OccurredAt))
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
