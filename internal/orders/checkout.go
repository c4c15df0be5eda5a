package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
	"github.com/fielderlane/farmstand/internal/pricing"
)

var (
	ErrEmptyOrder  = errors.New("order has no items")
	ErrUnknownItem = errors.New("unknown item")
)

// Catalog loads item snapshots for pricing at checkout.
type Catalog interface {
	GetItems(ctx context.Context, ids []string) ([]domain.SellableItem, error)
}

// SlotReserver books and compensates slot capacity during checkout.
type SlotReserver interface {
	Reserve(ctx context.Context, orderID string, key domain.SlotKey, itemCount int) error
	Release(ctx context.Context, orderID string) error
}

// PaymentIntents opens a payment with the gateway for the order total.
type PaymentIntents interface {
	CreateIntent(ctx context.Context, orderID string, amount decimal.Decimal, customerEmail string) (string, error)
}

// OrderCreator persists the checkout result.
type OrderCreator interface {
	Create(ctx context.Context, order *domain.Order) error
}

type CheckoutItem struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type CheckoutInput struct {
	CustomerName    string                 `json:"customer_name"`
	CustomerEmail   string                 `json:"customer_email"`
	Items           []CheckoutItem         `json:"items"`
	FulfillmentType domain.FulfillmentType `json:"fulfillment_type"`
	Slot            domain.SlotKey         `json:"slot"`
	DeliveryAddress string                 `json:"delivery_address,omitempty"`
}

// CheckoutService creates orders: it prices lines with the same
// functions the listing pages use, reserves slot capacity, opens a
// payment intent and persists the order in the created state. Payment
// confirmation arrives later through the webhook path.
type CheckoutService struct {
	catalog Catalog
	slots   SlotReserver
	intents PaymentIntents
	store   OrderCreator
	logger  *slog.Logger

	now func() time.Time
}

func NewCheckoutService(catalog Catalog, slots SlotReserver, intents PaymentIntents, store OrderCreator, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		catalog: catalog,
		slots:   slots,
		intents: intents,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *CheckoutService) PlaceOrder(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity %d for item %s", it.Quantity, it.ItemID)
		}
		ids = append(ids, it.ItemID)
	}

	snapshots, err := s.catalog.GetItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	byID := make(map[string]domain.SellableItem, len(snapshots))
	for _, item := range snapshots {
		byID[item.ID] = item
	}

	now := s.now().UTC()
	lines := make([]domain.OrderItem, 0, len(in.Items))
	total := decimal.Zero
	itemCount := 0
	for _, it := range in.Items {
		snapshot, ok := byID[it.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownItem, it.ItemID)
		}

		unitPrice := pricing.EffectivePriceAt(snapshot, now)
		lines = append(lines, domain.OrderItem{
			ItemID:    snapshot.ID,
			Name:      snapshot.Name,
			Kind:      snapshot.Kind,
			Quantity:  it.Quantity,
			UnitPrice: unitPrice,
		})
		total = total.Add(unitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		itemCount += it.Quantity
	}

	orderID := uuid.New().String()

	if err := s.slots.Reserve(ctx, orderID, in.Slot, itemCount); err != nil {
		return nil, err
	}

	intentRef, err := s.intents.CreateIntent(ctx, orderID, total, in.CustomerEmail)
	if err != nil {
		s.compensate(ctx, orderID)
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	order := &domain.Order{
		ID:               orderID,
		CustomerName:     in.CustomerName,
		CustomerEmail:    in.CustomerEmail,
		Items:            lines,
		FulfillmentType:  in.FulfillmentType,
		Slot:             in.Slot,
		DeliveryAddress:  in.DeliveryAddress,
		Status:           domain.OrderStatusCreated,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		PaymentIntentRef: intentRef,
		Total:            total,
		CreatedAt:        now,
	}

	if err := s.store.Create(ctx, order); err != nil {
		s.compensate(ctx, orderID)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.logger.Info("order created", "order_id", order.ID, "total", order.Total,
		"slot", in.Slot.String(), "items", itemCount)
	return order, nil
}

func (s *CheckoutService) compensate(ctx context.Context, orderID string) {
	if err := s.slots.Release(ctx, orderID); err != nil {
		s.logger.Error("failed to release slot after checkout failure", "error", err, "order_id", orderID)
	}
}
