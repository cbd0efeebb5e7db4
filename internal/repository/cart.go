package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type QuantityUpdate struct {
	ItemID   string
	Quantity int
}

// InventoryViolation reports a cart line that currently exceeds availability.
type InventoryViolation struct {
	ItemID    string `json:"item_id"`
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// GetOrCreateCart is idempotent: it returns the existing cart for the user
// or creates an empty one.
func (r *Repository) GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	return r.GetCart(ctx, userID)
}

// GetCart loads the cart with its items and annotates each item with
// availability flags from the current stock counters.
func (r *Repository) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`,
		userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ci.id, ci.product_id, ci.variant_id, ci.quantity, ci.unit_price,
		        p.name,
		        COALESCE(v.name, ''),
		        CASE WHEN ci.variant_id = 0 THEN p.stock_quantity ELSE COALESCE(v.stock_quantity, 0) END,
		        ci.added_at
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 LEFT JOIN product_variants v ON v.id = ci.variant_id AND ci.variant_id <> 0
		 WHERE ci.cart_id = $1`,
		cart.ID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		var available int
		if err := rows.Scan(
			&item.ID,
			&item.ProductID,
			&item.VariantID,
			&item.Quantity,
			&item.UnitPrice,
			&item.ProductName,
			&item.VariantName,
			&available,
			&item.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		inventory.Annotate(&item, available)
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &cart, nil
}

// lockCart serializes all mutations for one user's cart, including
// get-or-create itself: the insert is idempotent and the FOR UPDATE read
// blocks a racing request until this transaction finishes. This closes the
// window where two concurrent first-inserts of a brand-new line item could
// both pass the inventory re-check.
func lockCart(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("ensure cart: %w", err)
	}

	var cartID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("lock cart: %w", err)
	}
	return cartID, nil
}

// lockStock locks the product (or variant) row and returns the unit price
// including any variant surcharge, plus the available quantity. Every writer
// that touches a stock counter must go through this inside a transaction.
func lockStock(ctx context.Context, tx *sql.Tx, productID, variantID int64) (decimal.Decimal, int, error) {
	if variantID == domain.NoVariant {
		var price decimal.Decimal
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT price, stock_quantity FROM products WHERE id = $1 FOR UPDATE`,
			productID).Scan(&price, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, 0, ErrProductNotFound
		}
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("lock product %d: %w", productID, err)
		}
		return price, stock, nil
	}

	var price, surcharge decimal.Decimal
	var stock int
	err := tx.QueryRowContext(ctx,
		`SELECT p.price, v.surcharge, v.stock_quantity
		 FROM product_variants v
		 JOIN products p ON p.id = v.product_id
		 WHERE v.id = $1 AND v.product_id = $2
		 FOR UPDATE OF v`,
		variantID, productID).Scan(&price, &surcharge, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, 0, ErrProductNotFound
	}
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("lock variant %d: %w", variantID, err)
	}
	return price.Add(surcharge), stock, nil
}

// AddItem adds quantity to the user's cart line for (product, variant),
// creating cart and line as needed. The combined quantity is re-checked
// against stock under row locks so two concurrent adds cannot jointly
// oversell the remaining units.
func (r *Repository) AddItem(ctx context.Context, userID, productID, variantID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	return r.withRetry(ctx, DefaultTxOptions(), func(tx *sql.Tx) error {
		cartID, err := lockCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		unitPrice, available, err := lockStock(ctx, tx, productID, variantID)
		if err != nil {
			return err
		}

		var itemID string
		var existing int
		err = tx.QueryRowContext(ctx,
			`SELECT id, quantity FROM cart_items
			 WHERE cart_id = $1 AND product_id = $2 AND variant_id = $3`,
			cartID, productID, variantID).Scan(&itemID, &existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query cart item: %w", err)
		}

		combined := existing + quantity
		if combined > available {
			return ErrInsufficientInventory
		}

		price := unitPrice.Mul(decimal.NewFromInt(int64(combined)))
		if itemID != "" {
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items
				 SET quantity = $1, unit_price = $2, price = $3
				 WHERE id = $4`,
				combined, unitPrice, price, itemID)
			if err != nil {
				return fmt.Errorf("update cart item: %w", err)
			}
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, unit_price, price, added_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				uuid.New().String(), cartID, productID, variantID, combined, unitPrice, price)
			if err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
		}

		return touchCart(ctx, tx, cartID)
	})
}

// RemoveItem decrements the matching line by quantity. A result at or below
// zero deletes the line; an emptied cart is deleted with it.
func (r *Repository) RemoveItem(ctx context.Context, userID, productID, variantID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	return r.withRetry(ctx, DefaultTxOptions(), func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`,
			userID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCartNotFound
		}
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		var itemID string
		var existing int
		var unitPrice decimal.Decimal
		err = tx.QueryRowContext(ctx,
			`SELECT id, quantity, unit_price FROM cart_items
			 WHERE cart_id = $1 AND product_id = $2 AND variant_id = $3`,
			cartID, productID, variantID).Scan(&itemID, &existing, &unitPrice)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("query cart item: %w", err)
		}

		remaining := existing - quantity
		if remaining <= 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
		} else {
			price := unitPrice.Mul(decimal.NewFromInt(int64(remaining)))
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = $1, price = $2 WHERE id = $3`,
				remaining, price, itemID)
			if err != nil {
				return fmt.Errorf("update cart item: %w", err)
			}
		}

		var left int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM cart_items WHERE cart_id = $1`, cartID).Scan(&left); err != nil {
			return fmt.Errorf("count cart items: %w", err)
		}
		if left == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
				return fmt.Errorf("delete empty cart: %w", err)
			}
			return nil
		}

		return touchCart(ctx, tx, cartID)
	})
}

// UpdateQuantities is a batch update. Each item is independently revalidated
// against its own product or variant's current availability before the new
// price is written.
func (r *Repository) UpdateQuantities(ctx context.Context, userID int64, updates []QuantityUpdate) error {
	for _, u := range updates {
		if u.Quantity < 1 {
			return ErrInvalidQuantity
		}
	}

	return r.withRetry(ctx, DefaultTxOptions(), func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`,
			userID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCartNotFound
		}
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		for _, u := range updates {
			var productID, variantID int64
			err := tx.QueryRowContext(ctx,
				`SELECT product_id, variant_id FROM cart_items WHERE id = $1 AND cart_id = $2`,
				u.ItemID, cartID).Scan(&productID, &variantID)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrItemNotFound
			}
			if err != nil {
				return fmt.Errorf("query cart item %s: %w", u.ItemID, err)
			}

			unitPrice, available, err := lockStock(ctx, tx, productID, variantID)
			if err != nil {
				return err
			}
			if u.Quantity > available {
				return ErrInsufficientInventory
			}

			price := unitPrice.Mul(decimal.NewFromInt(int64(u.Quantity)))
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = $1, unit_price = $2, price = $3 WHERE id = $4`,
				u.Quantity, unitPrice, price, u.ItemID)
			if err != nil {
				return fmt.Errorf("update cart item %s: %w", u.ItemID, err)
			}
		}

		return touchCart(ctx, tx, cartID)
	})
}

// ValidateInventory is a read-only scan reporting which lines currently
// exceed availability. Nothing is mutated.
func (r *Repository) ValidateInventory(ctx context.Context, userID int64) ([]InventoryViolation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ci.id, ci.product_id, ci.variant_id, ci.quantity,
		        CASE WHEN ci.variant_id = 0 THEN p.stock_quantity ELSE COALESCE(v.stock_quantity, 0) END
		 FROM cart_items ci
		 JOIN carts c ON c.id = ci.cart_id
		 JOIN products p ON p.id = ci.product_id
		 LEFT JOIN product_variants v ON v.id = ci.variant_id AND ci.variant_id <> 0
		 WHERE c.user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query cart inventory: %w", err)
	}
	defer rows.Close()

	var violations []InventoryViolation
	for rows.Next() {
		var v InventoryViolation
		if err := rows.Scan(&v.ItemID, &v.ProductID, &v.VariantID, &v.Requested, &v.Available); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		if !inventory.Validate(v.Requested, v.Available).OK {
			violations = append(violations, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return violations, nil
}

// Availability returns the current available quantity for a product or
// variant without locking. Callers must not base authoritative decisions on
// it; writers re-check under lock.
func (r *Repository) Availability(ctx context.Context, productID, variantID int64) (int, error) {
	var available int
	var err error
	if variantID == domain.NoVariant {
		err = r.db.QueryRowContext(ctx,
			`SELECT stock_quantity FROM products WHERE id = $1`,
			productID).Scan(&available)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT stock_quantity FROM product_variants WHERE id = $1 AND product_id = $2`,
			variantID, productID).Scan(&available)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query availability: %w", err)
	}
	return available, nil
}

// DeleteCart removes the user's cart and its items.
func (r *Repository) DeleteCart(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCartNotFound
	}
	return nil
}

// DeleteStaleCarts removes carts inactive beyond the staleness window.
func (r *Repository) DeleteStaleCarts(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM carts WHERE updated_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("delete stale carts: %w", err)
	}
	return res.RowsAffected()
}

func touchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
