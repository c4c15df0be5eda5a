package capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fielderlane/farmstand/internal/domain"
)

// ErrSlotTooSoon means the slot starts inside the minimum lead time.
// Expected and user-facing; the customer picks a later slot.
var ErrSlotTooSoon = errors.New("time slot starts too soon")

// DefaultLeadTime is the minimum gap between booking and slot start.
const DefaultLeadTime = time.Hour

// Store is the persistence the ledger needs. Implemented by
// *Repository; narrow interface for testability.
type Store interface {
	GetSlot(ctx context.Context, key domain.SlotKey) (*domain.TimeSlot, error)
	ListSlots(ctx context.Context, fromDate, toDate string, itemCount int, notBefore time.Time) ([]domain.TimeSlot, error)
	Reserve(ctx context.Context, orderID string, key domain.SlotKey, itemCount int) error
	Release(ctx context.Context, orderID string) error
}

// Ledger enforces lead time and capacity ceilings for time slots.
// Reserve and ListAvailable share the same cutoff so the slots a
// customer sees are exactly the slots they can book.
type Ledger struct {
	store    Store
	leadTime time.Duration
	loc      *time.Location
	logger   *slog.Logger

	now func() time.Time
}

func NewLedger(store Store, leadTime time.Duration, loc *time.Location, logger *slog.Logger) *Ledger {
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		store:    store,
		leadTime: leadTime,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// cutoff is the earliest slot start that is still bookable.
func (l *Ledger) cutoff() time.Time {
	return l.now().Add(l.leadTime)
}

// Reserve books itemCount items and one order into the slot.
func (l *Ledger) Reserve(ctx context.Context, orderID string, key domain.SlotKey, itemCount int) error {
	startsAt, err := key.StartsAt(l.loc)
	if err != nil {
		return err
	}
	if startsAt.Before(l.cutoff()) {
		return fmt.Errorf("%w: slot %s starts within %s", ErrSlotTooSoon, key, l.leadTime)
	}

	if err := l.store.Reserve(ctx, orderID, key, itemCount); err != nil {
		return err
	}

	l.logger.Info("slot reserved", "order_id", orderID, "slot", key.String(), "items", itemCount)
	return nil
}

// Release returns the order's reserved capacity. Safe to call for
// orders that never reserved or already released; those are no-ops.
func (l *Ledger) Release(ctx context.Context, orderID string) error {
	if err := l.store.Release(ctx, orderID); err != nil {
		return err
	}

	l.logger.Info("slot reservation released", "order_id", orderID)
	return nil
}

// ListAvailable returns bookable slots for the date range: enough item
// and order headroom for the request, starting after the lead-time
// cutoff. The cutoff is converted to the ledger's location before it
// reaches the store, so slot wall-clock times are compared in the same
// zone Reserve uses.
func (l *Ledger) ListAvailable(ctx context.Context, fromDate, toDate string, itemCount int) ([]domain.TimeSlot, error) {
	return l.store.ListSlots(ctx, fromDate, toDate, itemCount, l.cutoff().In(l.loc))
}

// GetSlot fetches a single slot, nil when it does not exist.
func (l *Ledger) GetSlot(ctx context.Context, key domain.SlotKey) (*domain.TimeSlot, error) {
	return l.store.GetSlot(ctx, key)
}
