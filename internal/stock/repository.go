package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
)

var ErrItemNotFound = errors.New("item not found")

// Repository owns the items table: catalog reads plus the stock
// ledger's atomic counter updates. Stock never moves through a
// read-then-write; every mutation is a single UPDATE.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const itemColumns = `id, name, kind, base_price, sale_price, on_sale, sale_start, sale_end, stock`

func (r *Repository) GetItem(ctx context.Context, id string) (*domain.SellableItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

// GetItems loads a catalog snapshot for the given ids. Missing ids are
// simply absent from the result; callers decide whether that is fatal.
func (r *Repository) GetItems(ctx context.Context, ids []string) ([]domain.SellableItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

func (r *Repository) ListItems(ctx context.Context) ([]domain.SellableItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

// Decrement subtracts quantity from available stock, flooring at zero.
// A paid order is always honored even when stock accounting lags, so
// this never rejects for insufficient stock; it returns how many units
// the floor swallowed so callers can flag the gap.
func (r *Repository) Decrement(ctx context.Context, itemID string, quantity int) (int, error) {
	var prevStock int
	err := r.db.QueryRowContext(ctx, `
		WITH prev AS (
			SELECT stock FROM items WHERE id = $1
		)
		UPDATE items
		SET stock = GREATEST(stock - $2, 0)
		WHERE id = $1
		RETURNING (SELECT stock FROM prev)
	`, itemID, quantity).Scan(&prevStock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return 0, fmt.Errorf("decrement stock for %s: %w", itemID, err)
	}

	return max(quantity-prevStock, 0), nil
}

// Increment adds quantity back to available stock and returns the new
// level. Used for restocks and manual reversals; payment success is a
// durable commit point and is never compensated through here
// automatically.
func (r *Repository) Increment(ctx context.Context, itemID string, quantity int) (int, error) {
	var newStock int
	err := r.db.QueryRowContext(ctx, `
		UPDATE items
		SET stock = stock + $2
		WHERE id = $1
		RETURNING stock
	`, itemID, quantity).Scan(&newStock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return 0, fmt.Errorf("increment stock for %s: %w", itemID, err)
	}

	return newStock, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.SellableItem, error) {
	var (
		item      domain.SellableItem
		salePrice decimal.NullDecimal
		saleStart sql.NullTime
		saleEnd   sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.Name, &item.Kind, &item.BasePrice,
		&salePrice, &item.OnSale, &saleStart, &saleEnd, &item.Stock,
	)
	if err != nil {
		return nil, err
	}

	if salePrice.Valid {
		item.SalePrice = &salePrice.Decimal
	}
	if saleStart.Valid {
		t := saleStart.Time
		item.SaleStart = &t
	}
	if saleEnd.Valid {
		t := saleEnd.Time
		item.SaleEnd = &t
	}

	return &item, nil
}

func collectItems(rows *sql.Rows) ([]domain.SellableItem, error) {
	var items []domain.SellableItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
