package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

type FulfillmentType string

const (
	FulfillmentDelivery FulfillmentType = "delivery"
	FulfillmentPickup   FulfillmentType = "pickup"
)

// OrderItem snapshots the unit price at the time the order was placed.
// Price changes after checkout never change what the customer is charged.
type OrderItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Kind      ItemKind        `json:"kind"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID               string          `json:"id"`
	CustomerName     string          `json:"customer_name"`
	CustomerEmail    string          `json:"customer_email"`
	Items            []OrderItem     `json:"items"`
	FulfillmentType  FulfillmentType `json:"fulfillment_type"`
	Slot             SlotKey         `json:"slot"`
	DeliveryAddress  string          `json:"delivery_address,omitempty"`
	Status           OrderStatus     `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentIntentRef string          `json:"payment_intent_ref,omitempty"`
	Total            decimal.Decimal `json:"total"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ItemCount is the total number of units across all lines, which is
// what the capacity ledger charges against a slot.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Fulfillment is the downstream record created once an order is
// confirmed paid. One per order, keyed by OrderID.
type Fulfillment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	FulfillmentType FulfillmentType `json:"fulfillment_type"`
	Slot            SlotKey         `json:"slot"`
	Address         string          `json:"address,omitempty"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
}
