package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusViewed        InvoiceStatus = "viewed"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue" // derived, never persisted
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

type InvoiceLineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceDiscount is either a flat amount or a percentage of the
// subtotal, never both. Percent is expressed as a percentage (10 = 10%).
type InvoiceDiscount struct {
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Percent *decimal.Decimal `json:"percent,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// TaxConfig rate is a percentage (8 = 8%).
type TaxConfig struct {
	Rate  decimal.Decimal `json:"rate"`
	Label string          `json:"label"`
}

// FeeConfig describes the payment processing fee: percentage component
// (3 = 3%) plus a flat component in currency units.
type FeeConfig struct {
	Percent decimal.Decimal `json:"percent"`
	Flat    decimal.Decimal `json:"flat"`
}

type InvoicePayment struct {
	Amount decimal.Decimal `json:"amount"`
	PaidAt time.Time       `json:"paid_at"`
	Method string          `json:"method"`
}

type Invoice struct {
	ID            string            `json:"id"`
	Number        string            `json:"number"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	LineItems     []InvoiceLineItem `json:"line_items"`
	Discount      *InvoiceDiscount  `json:"discount,omitempty"`
	Tax           *TaxConfig        `json:"tax,omitempty"`
	ProcessingFee FeeConfig         `json:"processing_fee"`
	Payments      []InvoicePayment  `json:"payments"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	Status        InvoiceStatus     `json:"status"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
