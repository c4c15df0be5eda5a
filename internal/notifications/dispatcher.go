package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fielderlane/farmstand/internal/domain"
)

// Publisher writes an event to the notifications topic. Implemented by
// *messaging.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, event any) error
}

// Dispatcher fans notification events out to the topic. Notifications
// are best-effort: every method reports success as a bool and never
// returns an error, so callers on critical paths (the payment webhook,
// restocks) can log and move on.
type Dispatcher struct {
	publisher Publisher
	logger    *slog.Logger

	now func() time.Time
}

func NewDispatcher(publisher Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (d *Dispatcher) OrderConfirmed(ctx context.Context, order *domain.Order) bool {
	return d.publishOrder(ctx, domain.EventOrderConfirmed, order)
}

func (d *Dispatcher) AdminOrderAlert(ctx context.Context, order *domain.Order) bool {
	return d.publishOrder(ctx, domain.EventAdminOrderAlert, order)
}

func (d *Dispatcher) BackInStock(ctx context.Context, item domain.SellableItem) bool {
	event := d.envelope(domain.EventBackInStock)
	event.Stock = &domain.StockNotification{
		ItemID:   item.ID,
		ItemName: item.Name,
		Stock:    item.Stock,
	}
	return d.publish(ctx, item.ID, event)
}

func (d *Dispatcher) InvoiceApproved(ctx context.Context, inv *domain.Invoice) bool {
	event := d.envelope(domain.EventInvoiceApproved)
	event.Invoice = &domain.InvoiceNotification{
		InvoiceID:     inv.ID,
		Number:        inv.Number,
		CustomerName:  inv.CustomerName,
		CustomerEmail: inv.CustomerEmail,
		AmountPaid:    inv.AmountPaid,
	}
	return d.publish(ctx, inv.ID, event)
}

func (d *Dispatcher) publishOrder(ctx context.Context, eventType string, order *domain.Order) bool {
	event := d.envelope(eventType)
	event.Order = &domain.OrderNotification{
		OrderID:         order.ID,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
		Items:           order.Items,
		Total:           order.Total,
		FulfillmentType: order.FulfillmentType,
		Slot:            order.Slot,
		Address:         order.DeliveryAddress,
	}
	return d.publish(ctx, order.ID, event)
}

func (d *Dispatcher) envelope(eventType string) *domain.NotificationEvent {
	return &domain.NotificationEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: d.now().UTC(),
	}
}

func (d *Dispatcher) publish(ctx context.Context, key string, event *domain.NotificationEvent) bool {
	if err := d.publisher.Publish(ctx, key, event.Type, event); err != nil {
		d.logger.Error("failed to publish notification event", "error", err,
			"event_id", event.ID, "type", event.Type, "key", key)
		return false
	}
	return true
}
