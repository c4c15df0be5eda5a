package pricing

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

func timePtr(t time.Time) *time.Time { return &t }

func TestEffectivePriceAt_ScheduledWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	item := domain.SellableItem{
		ID:        "jam-8oz",
		BasePrice: dec("100"),
		SalePrice: decPtr("75"),
		SaleStart: timePtr(start),
		SaleEnd:   timePtr(start.Add(2 * time.Hour)),
	}

	t.Run("inside window uses sale price", func(t *testing.T) {
		now := start.Add(time.Hour)
		if got := EffectivePriceAt(item, now); !got.Equal(dec("75")) {
			t.Errorf("expected 75, got %s", got)
		}
		if got := SalePercent(item.BasePrice, item.SalePrice); got != 25 {
			t.Errorf("expected 25%%, got %d", got)
		}
	})

	t.Run("window end is exclusive", func(t *testing.T) {
		now := start.Add(2 * time.Hour)
		if OnSaleAt(item, now) {
			t.Error("sale ending exactly now should be over")
		}
		if got := EffectivePriceAt(item, now); !got.Equal(dec("100")) {
			t.Errorf("expected 100 at window end, got %s", got)
		}
	})

	t.Run("window start is inclusive", func(t *testing.T) {
		if !OnSaleAt(item, start) {
			t.Error("sale starting exactly now should be on")
		}
	})

	t.Run("before window uses base price", func(t *testing.T) {
		now := start.Add(-time.Second)
		if got := EffectivePriceAt(item, now); !got.Equal(dec("100")) {
			t.Errorf("expected 100 before window, got %s", got)
		}
	})
}

func TestOnSaleAt_PartialSchedules(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("start only, after start", func(t *testing.T) {
		item := domain.SellableItem{SaleStart: timePtr(now.Add(-time.Hour))}
		if !OnSaleAt(item, now) {
			t.Error("expected on sale")
		}
	})

	t.Run("start only, before start", func(t *testing.T) {
		item := domain.SellableItem{SaleStart: timePtr(now.Add(time.Hour)), OnSale: true}
		if OnSaleAt(item, now) {
			t.Error("schedule should override manual flag")
		}
	})

	t.Run("end only, before end", func(t *testing.T) {
		item := domain.SellableItem{SaleEnd: timePtr(now.Add(time.Hour))}
		if !OnSaleAt(item, now) {
			t.Error("expected on sale until end")
		}
	})

	t.Run("no schedule falls back to manual flag", func(t *testing.T) {
		if !OnSaleAt(domain.SellableItem{OnSale: true}, now) {
			t.Error("expected manual flag to apply")
		}
		if OnSaleAt(domain.SellableItem{}, now) {
			t.Error("expected off sale by default")
		}
	})
}

func TestEffectivePriceAt_IgnoresBadSalePrice(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("missing sale price", func(t *testing.T) {
		item := domain.SellableItem{BasePrice: dec("40"), OnSale: true}
		if got := EffectivePriceAt(item, now); !got.Equal(dec("40")) {
			t.Errorf("expected base price, got %s", got)
		}
	})

	t.Run("zero sale price", func(t *testing.T) {
		item := domain.SellableItem{BasePrice: dec("40"), SalePrice: decPtr("0"), OnSale: true}
		if got := EffectivePriceAt(item, now); !got.Equal(dec("40")) {
			t.Errorf("expected base price, got %s", got)
		}
	})
}

func TestSalePercent(t *testing.T) {
	tests := []struct {
		name string
		base string
		sale *decimal.Decimal
		want int
	}{
		{"quarter off", "100", decPtr("75"), 25},
		{"rounds to nearest", "30", decPtr("20"), 33},
		{"half rounds away from zero", "8", decPtr("7"), 13},
		{"two thirds off", "3", decPtr("1"), 67},
		{"sale above base", "50", decPtr("60"), 0},
		{"sale equals base", "50", decPtr("50"), 0},
		{"no sale price", "50", nil, 0},
		{"zero base", "0", decPtr("0"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SalePercent(dec(tt.base), tt.sale); got != tt.want {
				t.Errorf("SalePercent(%s) = %d, want %d", tt.base, got, tt.want)
			}
		})
	}
}

func TestSaleEndsIn(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		end    *time.Time
		want   string
		wantOK bool
	}{
		{"no end date", nil, "", false},
		{"already over", timePtr(now.Add(-time.Minute)), "", false},
		{"ends exactly now", timePtr(now), "", false},
		{"later today", timePtr(now.Add(6 * time.Hour)), "ends today", true},
		{"tomorrow morning", timePtr(now.Add(24 * time.Hour)), "ends tomorrow", true},
		{"tomorrow late", timePtr(time.Date(2026, 3, 11, 23, 0, 0, 0, time.UTC)), "ends tomorrow", true},
		{"three days out", timePtr(now.Add(61 * time.Hour)), "ends in 3 days", true},
		{"exact multiple of a day", timePtr(now.Add(72 * time.Hour)), "ends in 3 days", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := domain.SellableItem{SaleEnd: tt.end}
			got, ok := SaleEndsIn(item, now)
			if ok != tt.wantOK {
				t.Fatalf("SaleEndsIn ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("SaleEndsIn = %q, want %q", got, tt.want)
			}
		})
	}
}

// Checkout and listing must price identically for the same snapshot
// and instant; a drift here becomes a charge/display mismatch.
func TestPricingIsDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	item := domain.SellableItem{
		BasePrice: dec("19.99"),
		SalePrice: decPtr("14.99"),
		SaleStart: timePtr(start),
		SaleEnd:   timePtr(start.Add(48 * time.Hour)),
	}
	now := start.Add(3 * time.Hour)

	listing := EffectivePriceAt(item, now)
	checkout := EffectivePriceAt(item, now)
	if !listing.Equal(checkout) || listing.String() != checkout.String() {
		t.Errorf("listing price %s != checkout price %s", listing, checkout)
	}
}
