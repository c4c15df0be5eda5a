package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
)

type fakeStore struct {
	mu           sync.Mutex
	orders       map[string]*domain.Order // keyed by intent ref
	fulfillments map[string]int           // order id -> insert attempts that landed
	failMarkPaid error
}

func newFakeStore(orders ...*domain.Order) *fakeStore {
	f := &fakeStore{
		orders:       make(map[string]*domain.Order),
		fulfillments: make(map[string]int),
	}
	for _, o := range orders {
		f.orders[o.PaymentIntentRef] = o
	}
	return f
}

func (f *fakeStore) GetByIntentRef(_ context.Context, ref string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[ref]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) MarkPaid(_ context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarkPaid != nil {
		return false, f.failMarkPaid
	}
	o := f.orders[ref]
	if o.PaymentStatus == domain.PaymentStatusPaid {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentStatusPaid
	o.Status = domain.OrderStatusPaid
	return true, nil
}

func (f *fakeStore) MarkPaymentFailed(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[ref]
	if o.PaymentStatus != domain.PaymentStatusPaid {
		o.PaymentStatus = domain.PaymentStatusFailed
	}
	return nil
}

func (f *fakeStore) Cancel(_ context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[ref]
	if o.Status == domain.OrderStatusCancelled || o.PaymentStatus == domain.PaymentStatusPaid {
		return false, nil
	}
	o.Status = domain.OrderStatusCancelled
	o.PaymentStatus = domain.PaymentStatusFailed
	return true, nil
}

func (f *fakeStore) CreateFulfillment(_ context.Context, order *domain.Order) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fulfillments[order.ID] > 0 {
		return false, nil
	}
	f.fulfillments[order.ID] = 1
	return true, nil
}

type fakeStock struct {
	mu         sync.Mutex
	decrements map[string]int
	short      map[string]int // shortfall reported per item
	err        error
}

func (f *fakeStock) Decrement(_ context.Context, itemID string, quantity int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.decrements == nil {
		f.decrements = make(map[string]int)
	}
	f.decrements[itemID] += quantity
	return f.short[itemID], nil
}

// fakeCapacity counts release calls; like the real ledger, calling it
// again for the same order is harmless.
type fakeCapacity struct {
	mu       sync.Mutex
	calls    []string
	failures int // fail this many leading calls
	released map[string]bool
}

func (f *fakeCapacity) Release(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderID)
	if f.failures > 0 {
		f.failures--
		return errors.New("capacity store unavailable")
	}
	if f.released == nil {
		f.released = make(map[string]bool)
	}
	f.released[orderID] = true
	return nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	confirmed int
	alerted   int
	ok        bool
}

func (f *fakeDispatcher) OrderConfirmed(_ context.Context, _ *domain.Order) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed++
	return f.ok
}

func (f *fakeDispatcher) AdminOrderAlert(_ context.Context, _ *domain.Order) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerted++
	return f.ok
}

func testOrder() *domain.Order {
	return &domain.Order{
		ID:               "order-1",
		CustomerName:     "Ada",
		CustomerEmail:    "ada@example.com",
		PaymentIntentRef: "pi_123",
		Status:           domain.OrderStatusCreated,
		PaymentStatus:    domain.PaymentStatusUnpaid,
		Total:            decimal.NewFromInt(42),
		Items: []domain.OrderItem{
			{ItemID: "honey-jar", Kind: domain.ItemKindProduct, Quantity: 3, UnitPrice: decimal.NewFromInt(9)},
			{ItemID: "farm-tour", Kind: domain.ItemKindService, Quantity: 1, UnitPrice: decimal.NewFromInt(15)},
		},
	}
}

func testService(store *fakeStore, stock *fakeStock, cap *fakeCapacity, disp *fakeDispatcher) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, stock, cap, disp, logger)
}

func TestHandlePaymentSucceeded(t *testing.T) {
	t.Run("happy path runs all side effects", func(t *testing.T) {
		store := newFakeStore(testOrder())
		stock := &fakeStock{}
		disp := &fakeDispatcher{ok: true}
		svc := testService(store, stock, &fakeCapacity{}, disp)

		if err := svc.HandlePaymentSucceeded(context.Background(), "pi_123"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		o := store.orders["pi_123"]
		if o.Status != domain.OrderStatusPaid || o.PaymentStatus != domain.PaymentStatusPaid {
			t.Errorf("order not marked paid: status=%s payment=%s", o.Status, o.PaymentStatus)
		}
		if got := stock.decrements["honey-jar"]; got != 3 {
			t.Errorf("product decrement = %d, want 3", got)
		}
		if _, decremented := stock.decrements["farm-tour"]; decremented {
			t.Error("service lines must not touch stock")
		}
		if store.fulfillments["order-1"] != 1 {
			t.Error("expected one fulfillment record")
		}
		if disp.confirmed != 1 || disp.alerted != 1 {
			t.Errorf("dispatch counts = %d/%d, want 1/1", disp.confirmed, disp.alerted)
		}
	})

	t.Run("replayed event produces exactly one set of effects", func(t *testing.T) {
		store := newFakeStore(testOrder())
		stock := &fakeStock{}
		disp := &fakeDispatcher{ok: true}
		svc := testService(store, stock, &fakeCapacity{}, disp)

		for range 5 {
			if err := svc.HandlePaymentSucceeded(context.Background(), "pi_123"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if got := stock.decrements["honey-jar"]; got != 3 {
			t.Errorf("stock decremented %d units, want 3 (exactly once)", got)
		}
		if store.fulfillments["order-1"] != 1 {
			t.Errorf("fulfillments = %d, want 1", store.fulfillments["order-1"])
		}
		if disp.confirmed != 1 {
			t.Errorf("confirmations dispatched = %d, want 1", disp.confirmed)
		}
	})

	t.Run("unknown intent", func(t *testing.T) {
		svc := testService(newFakeStore(), &fakeStock{}, &fakeCapacity{}, &fakeDispatcher{ok: true})

		err := svc.HandlePaymentSucceeded(context.Background(), "pi_ghost")
		if !errors.Is(err, ErrUnknownOrder) {
			t.Fatalf("expected ErrUnknownOrder, got %v", err)
		}
	})

	t.Run("stock failure does not fail the webhook", func(t *testing.T) {
		store := newFakeStore(testOrder())
		stock := &fakeStock{err: errors.New("db down")}
		svc := testService(store, stock, &fakeCapacity{}, &fakeDispatcher{ok: true})

		if err := svc.HandlePaymentSucceeded(context.Background(), "pi_123"); err != nil {
			t.Fatalf("paid order must be honored despite stock failure, got %v", err)
		}
		if store.fulfillments["order-1"] != 1 {
			t.Error("later side effects must still run after a stock failure")
		}
	})

	t.Run("stock shortfall never fails a paid order", func(t *testing.T) {
		store := newFakeStore(testOrder())
		stock := &fakeStock{short: map[string]int{"honey-jar": 2}}
		svc := testService(store, stock, &fakeCapacity{}, &fakeDispatcher{ok: true})

		if err := svc.HandlePaymentSucceeded(context.Background(), "pi_123"); err != nil {
			t.Fatalf("clamped decrement must be honored, got %v", err)
		}
		if got := stock.decrements["honey-jar"]; got != 3 {
			t.Errorf("decrement still requested %d units, want 3", got)
		}
		if store.fulfillments["order-1"] != 1 {
			t.Error("fulfillment must still be recorded after a shortfall")
		}
	})

	t.Run("dispatcher failure does not fail the webhook", func(t *testing.T) {
		store := newFakeStore(testOrder())
		svc := testService(store, &fakeStock{}, &fakeCapacity{}, &fakeDispatcher{ok: false})

		if err := svc.HandlePaymentSucceeded(context.Background(), "pi_123"); err != nil {
			t.Fatalf("dispatch failure must be isolated, got %v", err)
		}
	})

	t.Run("concurrent deliveries decrement once", func(t *testing.T) {
		store := newFakeStore(testOrder())
		stock := &fakeStock{}
		svc := testService(store, stock, &fakeCapacity{}, &fakeDispatcher{ok: true})

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = svc.HandlePaymentSucceeded(context.Background(), "pi_123")
			}()
		}
		wg.Wait()

		if got := stock.decrements["honey-jar"]; got != 3 {
			t.Errorf("stock decremented %d units under concurrency, want 3", got)
		}
		if store.fulfillments["order-1"] != 1 {
			t.Errorf("fulfillments = %d, want 1", store.fulfillments["order-1"])
		}
	})
}

func TestHandlePaymentFailed(t *testing.T) {
	store := newFakeStore(testOrder())
	svc := testService(store, &fakeStock{}, &fakeCapacity{}, &fakeDispatcher{ok: true})

	if err := svc.HandlePaymentFailed(context.Background(), "pi_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o := store.orders["pi_123"]
	if o.PaymentStatus != domain.PaymentStatusFailed {
		t.Errorf("payment status = %s, want failed", o.PaymentStatus)
	}
	if o.Status != domain.OrderStatusCreated {
		t.Errorf("status = %s, want created (failed attempt keeps the order open)", o.Status)
	}
}

func TestHandlePaymentCanceled(t *testing.T) {
	t.Run("replayed cancels re-run the idempotent release", func(t *testing.T) {
		store := newFakeStore(testOrder())
		cap := &fakeCapacity{}
		svc := testService(store, &fakeStock{}, cap, &fakeDispatcher{ok: true})

		for range 3 {
			if err := svc.HandlePaymentCanceled(context.Background(), "pi_123"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		// Every delivery asks for the release; the reservation row in
		// the capacity ledger is what keeps the counters from moving
		// more than once.
		if len(cap.calls) != 3 {
			t.Fatalf("release calls = %d, want 3", len(cap.calls))
		}
		if !cap.released["order-1"] {
			t.Error("capacity for order-1 was never released")
		}

		o := store.orders["pi_123"]
		if o.Status != domain.OrderStatusCancelled || o.PaymentStatus != domain.PaymentStatusFailed {
			t.Errorf("order state = %s/%s, want cancelled/failed", o.Status, o.PaymentStatus)
		}
	})

	t.Run("failed release is retried on the redelivered cancel", func(t *testing.T) {
		store := newFakeStore(testOrder())
		cap := &fakeCapacity{failures: 1}
		svc := testService(store, &fakeStock{}, cap, &fakeDispatcher{ok: true})

		for range 2 {
			if err := svc.HandlePaymentCanceled(context.Background(), "pi_123"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if len(cap.calls) != 2 {
			t.Fatalf("release calls = %d, want 2", len(cap.calls))
		}
		if !cap.released["order-1"] {
			t.Error("redelivery must recover the release that failed after the cancel committed")
		}
	})

	t.Run("paid order is not cancelled", func(t *testing.T) {
		order := testOrder()
		order.Status = domain.OrderStatusPaid
		order.PaymentStatus = domain.PaymentStatusPaid
		store := newFakeStore(order)
		cap := &fakeCapacity{}
		svc := testService(store, &fakeStock{}, cap, &fakeDispatcher{ok: true})

		if err := svc.HandlePaymentCanceled(context.Background(), "pi_123"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cap.calls) != 0 {
			t.Error("paid order must not release capacity")
		}
	})

	t.Run("unknown intent", func(t *testing.T) {
		svc := testService(newFakeStore(), &fakeStock{}, &fakeCapacity{}, &fakeDispatcher{ok: true})
		if err := svc.HandlePaymentCanceled(context.Background(), "pi_ghost"); !errors.Is(err, ErrUnknownOrder) {
			t.Fatalf("expected ErrUnknownOrder, got %v", err)
		}
	})
}
