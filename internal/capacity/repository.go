package capacity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fielderlane/farmstand/internal/domain"
)

var (
	// ErrSlotFull means the slot cannot take the requested items or one
	// more order. Expected under load; the customer picks another slot.
	ErrSlotFull = errors.New("time slot is full")

	// ErrSlotNotFound means the slot key references no generated slot.
	ErrSlotNotFound = errors.New("time slot not found")
)

// Repository owns the time_slots counters and the per-order
// reservation rows that make release idempotent. All counter movement
// happens through single conditional UPDATEs so concurrent
// reservations serialize in the database, not in the application.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetSlot(ctx context.Context, key domain.SlotKey) (*domain.TimeSlot, error) {
	slot := &domain.TimeSlot{}
	err := r.db.QueryRowContext(ctx, `
		SELECT to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		       max_items, current_items, max_orders, current_orders
		FROM time_slots
		WHERE slot_date = $1::date AND start_time = $2::time
	`, key.Date, key.StartTime).Scan(
		&slot.Date, &slot.StartTime, &slot.EndTime,
		&slot.MaxItems, &slot.CurrentItems, &slot.MaxOrders, &slot.CurrentOrders,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return slot, nil
}

// ListSlots returns slots in the date range that start at or after
// notBefore and can still take one more order with itemCount items.
// The capacity predicate is the same expression Reserve uses. Slot
// date and start time are naive wall-clock values, so the cutoff is
// rendered as a naive timestamp in notBefore's location rather than
// letting the database session zone coerce it.
func (r *Repository) ListSlots(ctx context.Context, fromDate, toDate string, itemCount int, notBefore time.Time) ([]domain.TimeSlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		       max_items, current_items, max_orders, current_orders
		FROM time_slots
		WHERE slot_date BETWEEN $1::date AND $2::date
		  AND slot_date + start_time >= $3::timestamp
		  AND current_items + $4 <= max_items
		  AND current_orders + 1 <= max_orders
		ORDER BY slot_date, start_time
	`, fromDate, toDate, notBefore.Format("2006-01-02 15:04:05"), itemCount)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var slots []domain.TimeSlot
	for rows.Next() {
		var s domain.TimeSlot
		if err := rows.Scan(
			&s.Date, &s.StartTime, &s.EndTime,
			&s.MaxItems, &s.CurrentItems, &s.MaxOrders, &s.CurrentOrders,
		); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return slots, nil
}

// Reserve atomically charges itemCount items and one order against the
// slot, recording an active reservation for the order. Replaying the
// same order is a no-op. Both ceilings are checked in the UPDATE
// predicate; zero rows affected means no mutation happened at all.
func (r *Repository) Reserve(ctx context.Context, orderID string, key domain.SlotKey, itemCount int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM slot_reservations WHERE order_id = $1`, orderID,
	).Scan(&status)
	if err == nil && status == reservationActive {
		return nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE time_slots
		SET current_items = current_items + $3, current_orders = current_orders + 1
		WHERE slot_date = $1::date AND start_time = $2::time
		  AND current_items + $3 <= max_items
		  AND current_orders + 1 <= max_orders
	`, key.Date, key.StartTime, itemCount)
	if err != nil {
		return fmt.Errorf("update slot counters: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM time_slots WHERE slot_date = $1::date AND start_time = $2::time)`,
			key.Date, key.StartTime,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrSlotNotFound
		}
		return ErrSlotFull
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slot_reservations (order_id, slot_date, start_time, item_count, status)
		VALUES ($1, $2::date, $3::time, $4, $5)
		ON CONFLICT (order_id) DO UPDATE SET status = $5, item_count = $4
	`, orderID, key.Date, key.StartTime, itemCount, reservationActive)
	if err != nil {
		return fmt.Errorf("record reservation: %w", err)
	}

	return tx.Commit()
}

// Release gives back exactly what the order reserved, once. The
// reservation row is the guard: flipping active to released and the
// counter decrement commit together, so a replayed cancel finds no
// active row and does nothing. Decrements clamp at zero.
func (r *Repository) Release(ctx context.Context, orderID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		slotDate  string
		startTime string
		itemCount int
	)
	err = tx.QueryRowContext(ctx, `
		UPDATE slot_reservations
		SET status = $2, released_at = NOW()
		WHERE order_id = $1 AND status = $3
		RETURNING to_char(slot_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'), item_count
	`, orderID, reservationReleased, reservationActive).Scan(&slotDate, &startTime, &itemCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE time_slots
		SET current_items = GREATEST(current_items - $3, 0),
		    current_orders = GREATEST(current_orders - 1, 0)
		WHERE slot_date = $1::date AND start_time = $2::time
	`, slotDate, startTime, itemCount)
	if err != nil {
		return fmt.Errorf("return slot capacity: %w", err)
	}

	return tx.Commit()
}

const (
	reservationActive   = "active"
	reservationReleased = "released"
)
