package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
)

type fakePublisher struct {
	err    error
	keys   []string
	types  []string
	events []*domain.NotificationEvent
}

func (f *fakePublisher) Publish(_ context.Context, key, eventType string, event any) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.types = append(f.types, eventType)
	f.events = append(f.events, event.(*domain.NotificationEvent))
	return nil
}

func newDispatcher(pub *fakePublisher) *Dispatcher {
	return NewDispatcher(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatcher(t *testing.T) {
	order := &domain.Order{
		ID:            "order-1",
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Total:         decimal.NewFromInt(42),
		Slot:          domain.SlotKey{Date: "2026-05-21", StartTime: "10:00"},
	}

	t.Run("order confirmed", func(t *testing.T) {
		pub := &fakePublisher{}
		if !newDispatcher(pub).OrderConfirmed(context.Background(), order) {
			t.Fatal("expected dispatch to succeed")
		}
		if pub.types[0] != domain.EventOrderConfirmed {
			t.Errorf("event type = %s, want %s", pub.types[0], domain.EventOrderConfirmed)
		}
		if pub.keys[0] != "order-1" {
			t.Errorf("key = %s, want order id", pub.keys[0])
		}
		event := pub.events[0]
		if event.Order == nil || event.Order.CustomerEmail != "ada@example.com" {
			t.Errorf("order payload not carried: %+v", event.Order)
		}
		if event.ID == "" || event.OccurredAt.IsZero() {
			t.Error("envelope must carry id and timestamp")
		}
	})

	t.Run("back in stock keyed by item", func(t *testing.T) {
		pub := &fakePublisher{}
		item := domain.SellableItem{ID: "honey-jar", Name: "Honey", Stock: 12}
		if !newDispatcher(pub).BackInStock(context.Background(), item) {
			t.Fatal("expected dispatch to succeed")
		}
		if pub.keys[0] != "honey-jar" || pub.events[0].Stock.Stock != 12 {
			t.Errorf("stock payload wrong: key=%s event=%+v", pub.keys[0], pub.events[0].Stock)
		}
	})

	t.Run("invoice approved", func(t *testing.T) {
		pub := &fakePublisher{}
		inv := &domain.Invoice{ID: "inv-7", Number: "INV-0007", CustomerEmail: "ada@example.com"}
		if !newDispatcher(pub).InvoiceApproved(context.Background(), inv) {
			t.Fatal("expected dispatch to succeed")
		}
		if pub.events[0].Invoice.Number != "INV-0007" {
			t.Errorf("invoice payload wrong: %+v", pub.events[0].Invoice)
		}
	})

	t.Run("publish failure reports false, never errors", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("broker down")}
		d := newDispatcher(pub)
		if d.OrderConfirmed(context.Background(), order) {
			t.Error("expected false on publish failure")
		}
		if d.AdminOrderAlert(context.Background(), order) {
			t.Error("expected false on publish failure")
		}
	})
}
