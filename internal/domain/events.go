package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification event types. The dispatcher publishes these to the
// notifications topic; the worker renders them into outbound messages.
const (
	EventOrderConfirmed  = "order.confirmed"
	EventAdminOrderAlert = "order.admin_alert"
	EventBackInStock     = "stock.back_in_stock"
	EventInvoiceApproved = "invoice.approved"
)

// NotificationEvent is the wire envelope for every notification. The
// payload shape depends on Type.
type NotificationEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	Order   *OrderNotification   `json:"order,omitempty"`
	Stock   *StockNotification   `json:"stock,omitempty"`
	Invoice *InvoiceNotification `json:"invoice,omitempty"`
}

// OrderNotification carries everything the renderer needs for
// order-confirmed and admin-alert messages.
type OrderNotification struct {
	OrderID         string          `json:"order_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	Items           []OrderItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	FulfillmentType FulfillmentType `json:"fulfillment_type"`
	Slot            SlotKey         `json:"slot"`
	Address         string          `json:"address,omitempty"`
}

type StockNotification struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Stock    int    `json:"stock"`
}

type InvoiceNotification struct {
	InvoiceID     string          `json:"invoice_id"`
	Number        string          `json:"number"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
}
