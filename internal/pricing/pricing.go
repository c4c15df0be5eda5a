// Package pricing computes effective prices and sale-window state for
// catalog items. Everything here is pure: callers pass the item
// snapshot and the instant to evaluate at, so listing pages and
// checkout produce identical numbers for the same inputs.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fielderlane/farmstand/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// OnSaleAt reports whether the item is on sale at the given instant.
// A scheduled window beats the manual flag: with both ends set the
// window is half-open [start, end), so a sale ending exactly now is
// over. With only a start the sale runs indefinitely from that point;
// with only an end it runs until that point. Without any schedule the
// manual flag decides.
func OnSaleAt(item domain.SellableItem, now time.Time) bool {
	switch {
	case item.SaleStart != nil && item.SaleEnd != nil:
		return !now.Before(*item.SaleStart) && now.Before(*item.SaleEnd)
	case item.SaleStart != nil:
		return !now.Before(*item.SaleStart)
	case item.SaleEnd != nil:
		return now.Before(*item.SaleEnd)
	default:
		return item.OnSale
	}
}

// EffectivePriceAt is the price to charge and display at the given
// instant: the sale price while on sale and a positive sale price is
// set, the base price otherwise.
func EffectivePriceAt(item domain.SellableItem, now time.Time) decimal.Decimal {
	if OnSaleAt(item, now) && item.SalePrice != nil && item.SalePrice.IsPositive() {
		return *item.SalePrice
	}
	return item.BasePrice
}

// SalePercent is the rounded discount percentage, or 0 when the sale
// price is absent or not actually below the base price.
func SalePercent(basePrice decimal.Decimal, salePrice *decimal.Decimal) int {
	if salePrice == nil || !basePrice.IsPositive() || !salePrice.LessThan(basePrice) {
		return 0
	}
	pct := basePrice.Sub(*salePrice).Mul(oneHundred).Div(basePrice)
	return int(pct.Round(0).IntPart())
}

// SaleEndsIn returns a short countdown label for the end of the sale
// window ("ends today", "ends tomorrow", "ends in N days"). The second
// return is false when there is nothing to count down to: no end set,
// or the sale is already over.
func SaleEndsIn(item domain.SellableItem, now time.Time) (string, bool) {
	if item.SaleEnd == nil || !now.Before(*item.SaleEnd) {
		return "", false
	}
	end := item.SaleEnd.In(now.Location())

	switch days := calendarDaysBetween(now, end); days {
	case 0:
		return "ends today", true
	case 1:
		return "ends tomorrow", true
	default:
		n := int(end.Sub(now).Hours()/24) + 1
		if end.Sub(now)%(24*time.Hour) == 0 {
			n--
		}
		return fmt.Sprintf("ends in %d days", n), true
	}
}

// calendarDaysBetween counts midnights crossed between a and b in a's
// location. Same calendar day yields 0.
func calendarDaysBetween(a, b time.Time) int {
	loc := a.Location()
	aDay := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, loc)
	bDay := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, loc)
	return int(bDay.Sub(aDay) / (24 * time.Hour))
}
