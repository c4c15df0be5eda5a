package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fielderlane/farmstand/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, customer_email, fulfillment_type,
		                    slot_date, slot_start, delivery_address,
		                    status, payment_status, payment_intent_ref, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7, $8, $9, $10, $11, $12, $12)
	`, order.ID, order.CustomerName, order.CustomerEmail, order.FulfillmentType,
		order.Slot.Date, order.Slot.StartTime, order.DeliveryAddress,
		order.Status, order.PaymentStatus, order.PaymentIntentRef, order.Total, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, item_id, name, kind, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), order.ID, item.ItemID, item.Name, item.Kind, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const orderColumns = `id, customer_name, customer_email, fulfillment_type,
	to_char(slot_date, 'YYYY-MM-DD'), to_char(slot_start, 'HH24:MI'), delivery_address,
	status, payment_status, payment_intent_ref, total, created_at`

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetByIntentRef locates the order a gateway event belongs to. Webhook
// events reference orders only through the payment intent.
func (r *OrderRepository) GetByIntentRef(ctx context.Context, intentRef string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_ref = $1`, intentRef)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order := &domain.Order{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&order.ID, &order.CustomerName, &order.CustomerEmail, &order.FulfillmentType,
		&order.Slot.Date, &order.Slot.StartTime, &order.DeliveryAddress,
		&order.Status, &order.PaymentStatus, &order.PaymentIntentRef, &order.Total, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, name, kind, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ItemID, &item.Name, &item.Kind, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// MarkPaid flips the order to paid exactly once. The WHERE clause is
// the idempotency guard: a redelivered webhook finds payment_status
// already paid, affects zero rows and reports false.
func (r *OrderRepository) MarkPaid(ctx context.Context, intentRef string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, status = $3, updated_at = NOW()
		WHERE payment_intent_ref = $1 AND payment_status <> $2
	`, intentRef, domain.PaymentStatusPaid, domain.OrderStatusPaid)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// MarkPaymentFailed records the failed attempt without cancelling;
// the customer can retry payment on the same order.
func (r *OrderRepository) MarkPaymentFailed(ctx context.Context, intentRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, updated_at = NOW()
		WHERE payment_intent_ref = $1 AND payment_status <> $3
	`, intentRef, domain.PaymentStatusFailed, domain.PaymentStatusPaid)
	return err
}

// Cancel moves the order to its cancelled terminal state, once.
func (r *OrderRepository) Cancel(ctx context.Context, intentRef string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, status = $3, updated_at = NOW()
		WHERE payment_intent_ref = $1 AND status <> $3 AND payment_status <> $4
	`, intentRef, domain.PaymentStatusFailed, domain.OrderStatusCancelled, domain.PaymentStatusPaid)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// CreateFulfillment writes the downstream record for a paid order.
// The unique order_id makes this idempotent: the second insert is a
// no-op and reports false.
func (r *OrderRepository) CreateFulfillment(ctx context.Context, order *domain.Order) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO fulfillments (id, order_id, fulfillment_type, slot_date, slot_start, address, created_at)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7)
		ON CONFLICT (order_id) DO NOTHING
	`, uuid.New().String(), order.ID, order.FulfillmentType,
		order.Slot.Date, order.Slot.StartTime, order.DeliveryAddress, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("create fulfillment for order %s: %w", order.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
