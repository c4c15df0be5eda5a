package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupTTL covers the gateway's redelivery window with room to spare.
const dedupTTL = 48 * time.Hour

// EventDedup remembers gateway event ids in Redis so redelivered
// webhooks can be acknowledged without re-entering the state machine.
// It is an optimization on top of the conditional status transitions,
// not the correctness guarantee: when Redis is unavailable the event is
// processed anyway.
type EventDedup struct {
	client *redis.Client
	logger *slog.Logger
}

func NewEventDedup(client *redis.Client, logger *slog.Logger) *EventDedup {
	return &EventDedup{
		client: client,
		logger: logger,
	}
}

// FirstDelivery marks the event id seen and reports whether this is the
// first time. Errors are logged and treated as first delivery.
func (d *EventDedup) FirstDelivery(ctx context.Context, eventID string) bool {
	if d == nil || d.client == nil {
		return true
	}

	ok, err := d.client.SetNX(ctx, "webhook:event:"+eventID, 1, dedupTTL).Result()
	if err != nil {
		d.logger.Warn("event dedup unavailable, processing anyway", "error", err, "event_id", eventID)
		return true
	}
	return ok
}

// Forget clears the seen marker for an event whose processing failed,
// so the gateway's redelivery is processed instead of being
// acknowledged as a duplicate.
func (d *EventDedup) Forget(ctx context.Context, eventID string) {
	if d == nil || d.client == nil {
		return
	}

	if err := d.client.Del(ctx, "webhook:event:"+eventID).Err(); err != nil {
		d.logger.Warn("could not clear dedup marker after failure", "error", err, "event_id", eventID)
	}
}
