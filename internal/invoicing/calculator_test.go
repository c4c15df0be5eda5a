package invoicing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func line(desc string, qty int, rate string) domain.InvoiceLineItem {
	r := dec(rate)
	return domain.InvoiceLineItem{
		Description: desc,
		Quantity:    qty,
		Rate:        r,
		Amount:      r.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func TestComputeTotals_PercentDiscountAndTax(t *testing.T) {
	inv := &domain.Invoice{
		LineItems: []domain.InvoiceLineItem{
			line("Wedding catering deposit", 1, "60"),
			line("Produce box", 4, "10"),
		},
		Discount: &domain.InvoiceDiscount{Percent: decPtr("10"), Reason: "repeat customer"},
		Tax:      &domain.TaxConfig{Rate: dec("8"), Label: "Sales tax"},
	}

	got := ComputeTotals(inv)

	if !got.Subtotal.Equal(dec("100")) {
		t.Errorf("subtotal = %s, want 100", got.Subtotal)
	}
	if !got.DiscountAmount.Equal(dec("10")) {
		t.Errorf("discount = %s, want 10", got.DiscountAmount)
	}
	if !got.TaxAmount.Equal(dec("7.2")) {
		t.Errorf("tax = %s, want 7.2", got.TaxAmount)
	}
	if !got.Total.Equal(dec("97.2")) {
		t.Errorf("total = %s, want 97.2", got.Total)
	}
}

func TestComputeTotals_FlatDiscountNoTax(t *testing.T) {
	inv := &domain.Invoice{
		LineItems: []domain.InvoiceLineItem{line("Market stall rental", 2, "45.50")},
		Discount:  &domain.InvoiceDiscount{Amount: decPtr("15")},
	}

	got := ComputeTotals(inv)

	if !got.Subtotal.Equal(dec("91")) {
		t.Errorf("subtotal = %s, want 91", got.Subtotal)
	}
	if !got.DiscountAmount.Equal(dec("15")) {
		t.Errorf("discount = %s, want 15", got.DiscountAmount)
	}
	if !got.TaxAmount.IsZero() {
		t.Errorf("tax = %s, want 0", got.TaxAmount)
	}
	if !got.Total.Equal(dec("76")) {
		t.Errorf("total = %s, want 76", got.Total)
	}
}

func TestComputeTotals_Balance(t *testing.T) {
	inv := &domain.Invoice{
		LineItems:  []domain.InvoiceLineItem{line("Delivery service", 1, "120")},
		AmountPaid: dec("50"),
	}

	got := ComputeTotals(inv)
	if !got.Balance.Equal(dec("70")) {
		t.Errorf("balance = %s, want 70", got.Balance)
	}
}

func TestProcessingFee(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		percent string
		flat    string
		want    string
	}{
		{"three percent rounds half up", "97.2", "3", "0", "2.92"},
		{"percent plus flat", "100", "2.9", "0.30", "3.20"},
		{"zero config", "50", "0", "0", "0"},
		{"flat only", "50", "0", "0.30", "0.30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee := domain.FeeConfig{Percent: dec(tt.percent), Flat: dec(tt.flat)}
			got := ProcessingFee(dec(tt.amount), fee)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("ProcessingFee(%s) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestTotalWithProcessingFee(t *testing.T) {
	fee := domain.FeeConfig{Percent: dec("3"), Flat: decimal.Zero}
	got := TotalWithProcessingFee(dec("97.2"), fee)
	if !got.Equal(dec("100.12")) {
		t.Errorf("total with fee = %s, want 100.12", got)
	}
}

func TestDerivedStatusAt(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	base := func() *domain.Invoice {
		return &domain.Invoice{
			LineItems: []domain.InvoiceLineItem{line("CSA share", 1, "200")},
			Status:    domain.InvoiceStatusSent,
		}
	}

	t.Run("fully paid", func(t *testing.T) {
		inv := base()
		inv.AmountPaid = dec("200")
		if got := DerivedStatusAt(inv, now); got != domain.InvoiceStatusPaid {
			t.Errorf("got %s, want paid", got)
		}
	})

	t.Run("overpaid still counts as paid", func(t *testing.T) {
		inv := base()
		inv.AmountPaid = dec("250")
		if got := DerivedStatusAt(inv, now); got != domain.InvoiceStatusPaid {
			t.Errorf("got %s, want paid", got)
		}
	})

	t.Run("partially paid beats overdue", func(t *testing.T) {
		inv := base()
		inv.AmountPaid = dec("50")
		inv.DueDate = &past
		if got := DerivedStatusAt(inv, now); got != domain.InvoiceStatusPartiallyPaid {
			t.Errorf("got %s, want partially_paid", got)
		}
	})

	t.Run("past due date is overdue", func(t *testing.T) {
		inv := base()
		inv.DueDate = &past
		if got := DerivedStatusAt(inv, now); got != domain.InvoiceStatusOverdue {
			t.Errorf("got %s, want overdue", got)
		}
	})

	t.Run("cancelled never becomes overdue", func(t *testing.T) {
		inv := base()
		inv.Status = domain.InvoiceStatusCancelled
		inv.DueDate = &past
		if got := DerivedStatusAt(inv, now); got != domain.InvoiceStatusCancelled {
			t.Errorf("got %s, want cancelled", got)
		}
	})

	t.Run("unpaid before due date keeps persisted status", func(t *testing.T) {
		inv := base()
		inv.DueDate = &future
		if got := DerivedStatusAt(inv, now); got != domain.InvoiceStatusSent {
			t.Errorf("got %s, want sent", got)
		}
	})
}
