package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoVariant is the variant id used for products sold without variants.
// Keeping it as a concrete zero value lets (product_id, variant_id) stay a
// plain unique key in both the local store and the cart_items table.
const NoVariant int64 = 0

type CartItem struct {
	ID          string          `json:"id"`
	ProductID   int64           `json:"product_id"`
	VariantID   int64           `json:"variant_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ProductName string          `json:"product_name"`
	VariantName string          `json:"variant_name,omitempty"`

	// Availability flags computed against the latest known inventory
	// snapshot. Never trusted for authoritative decisions, see cartsvc.
	IsAvailable        bool `json:"is_available"`
	MaxQuantityReached bool `json:"max_quantity_reached"`

	AddedAt time.Time `json:"added_at"`
}

// Subtotal is unit price times quantity for this line.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartMetadata is a pure projection over cart items; always recomputed,
// never cached, so it cannot go stale relative to the items it describes.
type CartMetadata struct {
	ItemCount       int             `json:"item_count"`
	UniqueItemCount int             `json:"unique_item_count"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

func ComputeMetadata(items []CartItem) CartMetadata {
	md := CartMetadata{Subtotal: decimal.Zero}
	for _, item := range items {
		md.ItemCount += item.Quantity
		md.UniqueItemCount++
		md.Subtotal = md.Subtotal.Add(item.Subtotal())
	}
	return md
}
