package invoices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

// Repository owns the invoices tables. Payment recording follows the
// same discipline as the order side: the unique intent reference makes
// a replayed gateway event insert nothing, and the amount_paid bump
// only happens when the insert landed.
type Repository struct {
	db *sql.DB

	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
	}
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	var (
		inv             domain.Invoice
		discountAmount  decimal.NullDecimal
		discountPercent decimal.NullDecimal
		discountReason  sql.NullString
		taxRate         decimal.NullDecimal
		taxLabel        sql.NullString
		dueDate         sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, number, customer_name, customer_email,
		       discount_amount, discount_percent, discount_reason,
		       tax_rate, tax_label, fee_percent, fee_flat,
		       amount_paid, status, due_date, created_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(
		&inv.ID, &inv.Number, &inv.CustomerName, &inv.CustomerEmail,
		&discountAmount, &discountPercent, &discountReason,
		&taxRate, &taxLabel, &inv.ProcessingFee.Percent, &inv.ProcessingFee.Flat,
		&inv.AmountPaid, &inv.Status, &dueDate, &inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if discountAmount.Valid || discountPercent.Valid {
		inv.Discount = &domain.InvoiceDiscount{Reason: discountReason.String}
		if discountAmount.Valid {
			inv.Discount.Amount = &discountAmount.Decimal
		}
		if discountPercent.Valid {
			inv.Discount.Percent = &discountPercent.Decimal
		}
	}
	if taxRate.Valid {
		inv.Tax = &domain.TaxConfig{Rate: taxRate.Decimal, Label: taxLabel.String}
	}
	if dueDate.Valid {
		t := dueDate.Time
		inv.DueDate = &t
	}

	if inv.LineItems, err = r.lineItems(ctx, id); err != nil {
		return nil, err
	}
	if inv.Payments, err = r.payments(ctx, id); err != nil {
		return nil, err
	}

	return &inv, nil
}

func (r *Repository) lineItems(ctx context.Context, invoiceID string) ([]domain.InvoiceLineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT description, quantity, rate, amount
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY position
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.InvoiceLineItem
	for rows.Next() {
		var li domain.InvoiceLineItem
		if err := rows.Scan(&li.Description, &li.Quantity, &li.Rate, &li.Amount); err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (r *Repository) payments(ctx context.Context, invoiceID string) ([]domain.InvoicePayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT amount, paid_at, method
		FROM invoice_payments
		WHERE invoice_id = $1
		ORDER BY paid_at
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var payments []domain.InvoicePayment
	for rows.Next() {
		var p domain.InvoicePayment
		if err := rows.Scan(&p.Amount, &p.PaidAt, &p.Method); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// RecordGatewayPayment appends a payment row and bumps the running
// amount_paid, in one transaction. The intent reference is unique, so a
// redelivered webhook inserts nothing and the bump is skipped.
func (r *Repository) RecordGatewayPayment(ctx context.Context, invoiceID, intentRef string, amount decimal.Decimal, method string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO invoice_payments (id, invoice_id, intent_ref, amount, method, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (intent_ref) DO NOTHING
	`, uuid.New().String(), invoiceID, intentRef, amount, method, r.now().UTC())
	if err != nil {
		return fmt.Errorf("record invoice payment: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return tx.Commit()
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET amount_paid = amount_paid + $2
		WHERE id = $1
	`, invoiceID, amount)
	if err != nil {
		return fmt.Errorf("update amount paid: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}

	return tx.Commit()
}
