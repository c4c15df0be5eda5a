// Package invoicing derives invoice money figures from line items,
// discount/tax configuration and payment history. All functions are
// read-only; persisted invoice status only changes through explicit
// actions, never as a side effect of computing totals.
package invoicing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// Totals is the full money breakdown for an invoice.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Balance        decimal.Decimal `json:"balance"`
}

// ComputeTotals derives subtotal, discount, tax, total and running
// balance. Discount applies to the subtotal; tax applies to the
// discounted subtotal.
func ComputeTotals(inv *domain.Invoice) Totals {
	subtotal := decimal.Zero
	for _, li := range inv.LineItems {
		subtotal = subtotal.Add(li.Amount)
	}

	discount := decimal.Zero
	if inv.Discount != nil {
		switch {
		case inv.Discount.Amount != nil:
			discount = *inv.Discount.Amount
		case inv.Discount.Percent != nil:
			discount = subtotal.Mul(*inv.Discount.Percent).Div(oneHundred).Round(2)
		}
	}

	taxable := subtotal.Sub(discount)
	tax := decimal.Zero
	if inv.Tax != nil {
		tax = taxable.Mul(inv.Tax.Rate).Div(oneHundred).Round(2)
	}

	total := taxable.Add(tax)
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		Total:          total,
		AmountPaid:     inv.AmountPaid,
		Balance:        total.Sub(inv.AmountPaid),
	}
}

// ProcessingFee is amount*percent + flat, rounded to cents half-up.
func ProcessingFee(amount decimal.Decimal, fee domain.FeeConfig) decimal.Decimal {
	return amount.Mul(fee.Percent).Div(oneHundred).Add(fee.Flat).Round(2)
}

// TotalWithProcessingFee is the amount the payer is actually charged
// when the processing fee is passed through.
func TotalWithProcessingFee(amount decimal.Decimal, fee domain.FeeConfig) decimal.Decimal {
	return amount.Add(ProcessingFee(amount, fee))
}

// DerivedStatusAt computes the display status for an invoice at the
// given instant. Payment coverage wins over everything else, then the
// due date; otherwise the persisted status stands. Overdue is never
// written back.
func DerivedStatusAt(inv *domain.Invoice, now time.Time) domain.InvoiceStatus {
	if inv.Status == domain.InvoiceStatusCancelled {
		return domain.InvoiceStatusCancelled
	}

	totals := ComputeTotals(inv)
	switch {
	case totals.Total.IsPositive() && inv.AmountPaid.GreaterThanOrEqual(totals.Total):
		return domain.InvoiceStatusPaid
	case inv.AmountPaid.IsPositive():
		return domain.InvoiceStatusPartiallyPaid
	case inv.DueDate != nil && inv.DueDate.Before(now):
		return domain.InvoiceStatusOverdue
	default:
		return inv.Status
	}
}
