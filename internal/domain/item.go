package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemKind string

const (
	ItemKindProduct ItemKind = "product"
	ItemKindService ItemKind = "service"
)

// SellableItem is a catalog snapshot used by pricing and checkout.
// SalePrice, SaleStart and SaleEnd are optional; an absent sale price
// means the item never sells below BasePrice regardless of the flags.
type SellableItem struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Kind      ItemKind         `json:"kind"`
	BasePrice decimal.Decimal  `json:"base_price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	OnSale    bool             `json:"on_sale"`
	SaleStart *time.Time       `json:"sale_start,omitempty"`
	SaleEnd   *time.Time       `json:"sale_end,omitempty"`
	Stock     int              `json:"stock"`
}
