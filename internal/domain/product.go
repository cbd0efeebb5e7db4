package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ProductVariant carries its own independent stock counter and a surcharge
// added on top of the base product price.
type ProductVariant struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	Surcharge     decimal.Decimal `json:"surcharge"`
	StockQuantity int             `json:"stock_quantity"`
}

// Availability is the latest known available quantity for one
// (product, variant) pair. The relational store is the source of truth;
// this is only a snapshot handed to the inventory validator.
type Availability struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	Available int   `json:"available"`
}
