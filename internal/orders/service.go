package orders

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fielderlane/farmstand/internal/domain"
)

// ErrUnknownOrder means a gateway event referenced a payment intent no
// order carries. Logged and acknowledged so the gateway stops retrying.
var ErrUnknownOrder = errors.New("no order for payment intent")

// Store is what the state machine needs from order persistence.
// Implemented by *OrderRepository.
type Store interface {
	GetByIntentRef(ctx context.Context, intentRef string) (*domain.Order, error)
	MarkPaid(ctx context.Context, intentRef string) (bool, error)
	MarkPaymentFailed(ctx context.Context, intentRef string) error
	Cancel(ctx context.Context, intentRef string) (bool, error)
	CreateFulfillment(ctx context.Context, order *domain.Order) (bool, error)
}

// StockLedger decrements available quantity for paid order lines. The
// int result is the shortfall the floor-at-zero clamp absorbed, zero
// when the full quantity was available.
type StockLedger interface {
	Decrement(ctx context.Context, itemID string, quantity int) (int, error)
}

// CapacityReleaser gives back a cancelled order's slot reservation.
type CapacityReleaser interface {
	Release(ctx context.Context, orderID string) error
}

// Dispatcher fans out notification events. Implementations report
// success as a bool and never fail into the caller's critical path.
type Dispatcher interface {
	OrderConfirmed(ctx context.Context, order *domain.Order) bool
	AdminOrderAlert(ctx context.Context, order *domain.Order) bool
}

// Service is the order state machine. Gateway webhook events are its
// only drivers; every transition checks current state first so
// redelivered events are no-ops instead of double effects.
type Service struct {
	store      Store
	stock      StockLedger
	capacity   CapacityReleaser
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewService(store Store, stock StockLedger, capacity CapacityReleaser, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		stock:      stock,
		capacity:   capacity,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandlePaymentSucceeded transitions the order to paid and runs the
// paid side effects: stock decrement, fulfillment record,
// notifications. The status flip is the commit point; each side effect
// after it is isolated and its failure is logged, never returned, so a
// paid order is always honored.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, intentRef string) error {
	order, err := s.store.GetByIntentRef(ctx, intentRef)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrUnknownOrder
	}

	transitioned, err := s.store.MarkPaid(ctx, intentRef)
	if err != nil {
		return err
	}
	if !transitioned {
		s.logger.Info("payment success replayed, order already paid", "order_id", order.ID)
		return nil
	}

	s.logger.Info("order paid", "order_id", order.ID, "total", order.Total)

	for _, item := range order.Items {
		if item.Kind != domain.ItemKindProduct {
			continue
		}
		short, err := s.stock.Decrement(ctx, item.ItemID, item.Quantity)
		switch {
		case err != nil:
			s.logger.Error("stock decrement failed for paid order", "error", err,
				"order_id", order.ID, "item_id", item.ItemID, "quantity", item.Quantity)
		case short > 0:
			s.logger.Warn("stock ran short for paid order, floored at zero",
				"order_id", order.ID, "item_id", item.ItemID, "requested", item.Quantity, "short", short)
		}
	}

	created, err := s.store.CreateFulfillment(ctx, order)
	if err != nil {
		s.logger.Error("fulfillment record creation failed", "error", err, "order_id", order.ID)
	} else if !created {
		s.logger.Info("fulfillment record already exists", "order_id", order.ID)
	}

	if !s.dispatcher.OrderConfirmed(ctx, order) {
		s.logger.Warn("order confirmation not dispatched", "order_id", order.ID)
	}
	if !s.dispatcher.AdminOrderAlert(ctx, order) {
		s.logger.Warn("admin order alert not dispatched", "order_id", order.ID)
	}

	return nil
}

// HandlePaymentFailed records the failure but keeps the order open so
// the customer can retry with another payment method.
func (s *Service) HandlePaymentFailed(ctx context.Context, intentRef string) error {
	order, err := s.store.GetByIntentRef(ctx, intentRef)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrUnknownOrder
	}

	if err := s.store.MarkPaymentFailed(ctx, intentRef); err != nil {
		return err
	}

	s.logger.Info("payment failed, order kept open for retry", "order_id", order.ID)
	return nil
}

// HandlePaymentCanceled moves the order to cancelled and returns its
// slot capacity. The release only happens on the transition that
// actually cancelled, and the reservation rows guard against giving
// back more than was held.
func (s *Service) HandlePaymentCanceled(ctx context.Context, intentRef string) error {
	order, err := s.store.GetByIntentRef(ctx, intentRef)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrUnknownOrder
	}

	transitioned, err := s.store.Cancel(ctx, intentRef)
	if err != nil {
		return err
	}
	if !transitioned {
		// Replays on a cancelled order re-run the release: it is a
		// no-op when the capacity already came back, and it heals a
		// release that failed after the cancel committed.
		if order.Status == domain.OrderStatusCancelled {
			if err := s.capacity.Release(ctx, order.ID); err != nil {
				s.logger.Error("slot release failed for cancelled order", "error", err, "order_id", order.ID)
			}
		}
		s.logger.Info("cancel replayed or order already terminal", "order_id", order.ID)
		return nil
	}

	if err := s.capacity.Release(ctx, order.ID); err != nil {
		s.logger.Error("slot release failed for cancelled order", "error", err, "order_id", order.ID)
	}

	s.logger.Info("order cancelled", "order_id", order.ID)
	return nil
}
