package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommitArgs carries everything the checkout commit needs. Totals and Pay
// are injected so the repository stays free of pricing policy and payment
// gateway knowledge.
type CommitArgs struct {
	UserID          int64
	ShippingAddress string
	Method          string

	// Totals derives shipping, tax and grand total from the subtotal
	// computed under lock inside the transaction.
	Totals func(subtotal decimal.Decimal) (shipping, tax, total decimal.Decimal)

	// Pay executes the payment for the grand total. It runs inside the
	// database transaction; a declined payment aborts everything.
	Pay func(total decimal.Decimal) (bool, error)
}

// CommitCheckout converts the user's cart into a paid order in one atomic
// transaction: revalidate under lock, insert the order and its item
// snapshots, decrement inventory, execute payment, record it, flip the order
// to PAID and delete the cart. Any failure rolls the whole thing back, so a
// declined payment leaves stock and orders exactly as they were.
//
// The commit is never auto-retried: rerunning the closure would re-execute
// the payment callback. A serialization conflict surfaces as an error and
// the user must re-initiate, which keeps Pay at most-once per call.
func (r *Repository) CommitCheckout(ctx context.Context, args CommitArgs) (*domain.Order, error) {
	var order *domain.Order

	err := r.withTransaction(ctx, TxOptions{
		IsolationLevel: sql.LevelSerializable,
	}, func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`,
			args.UserID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		items, err := loadItemsForCheckout(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		// Re-validate every line under lock; this defends against stock
		// changes since initialize.
		subtotal := decimal.Zero
		for i := range items {
			unitPrice, available, err := lockStock(ctx, tx, items[i].ProductID, items[i].VariantID)
			if err != nil {
				return err
			}
			if items[i].Quantity > available {
				return ErrInsufficientInventory
			}
			items[i].Price = unitPrice
			subtotal = subtotal.Add(unitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity))))
		}

		shipping, tax, total := args.Totals(subtotal)

		now := time.Now()
		o := &domain.Order{
			ID:              uuid.New(),
			UserID:          args.UserID,
			Status:          domain.OrderStatusPending,
			ShippingAddress: args.ShippingAddress,
			Subtotal:        subtotal,
			ShippingTotal:   shipping,
			TaxTotal:        tax,
			Total:           total,
			Items:           items,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO orders (id, user_id, status, shipping_address, subtotal, shipping_total, tax_total, total, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
			o.ID, o.UserID, o.Status, o.ShippingAddress, o.Subtotal, o.ShippingTotal, o.TaxTotal, o.Total)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range o.Items {
			o.Items[i].ID = uuid.New()
			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (id, order_id, product_id, variant_id, product_name, variant_name, quantity, price)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				o.Items[i].ID, o.ID,
				o.Items[i].ProductID, o.Items[i].VariantID,
				o.Items[i].ProductName, o.Items[i].VariantName,
				o.Items[i].Quantity, o.Items[i].Price)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		// Inventory decrement must never run outside the same transaction
		// as order creation; a crash between the two would either oversell
		// or orphan an order.
		for _, item := range o.Items {
			if err := decrementStock(ctx, tx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}

		ok, err := args.Pay(total)
		if err != nil {
			return fmt.Errorf("execute payment: %w", err)
		}
		if !ok {
			return ErrPaymentDeclined
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO payments (id, order_id, user_id, method, status, amount, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			uuid.New(), o.ID, o.UserID, args.Method, domain.PaymentStatusSuccess, total)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
			domain.OrderStatusPaid, o.ID)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		o.Status = domain.OrderStatusPaid

		if err := insertOrderEvent(ctx, tx, o); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func loadItemsForCheckout(ctx context.Context, tx *sql.Tx, cartID int64) ([]domain.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ci.product_id, ci.variant_id, ci.quantity, p.name, COALESCE(v.name, '')
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 LEFT JOIN product_variants v ON v.id = ci.variant_id AND ci.variant_id <> 0
		 WHERE ci.cart_id = $1
		 ORDER BY ci.added_at`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.VariantID, &item.Quantity, &item.ProductName, &item.VariantName); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func decrementStock(ctx context.Context, tx *sql.Tx, productID, variantID int64, quantity int) error {
	var res sql.Result
	var err error
	if variantID == domain.NoVariant {
		res, err = tx.ExecContext(ctx,
			`UPDATE products
			 SET stock_quantity = stock_quantity - $1, updated_at = NOW()
			 WHERE id = $2 AND stock_quantity >= $1`,
			quantity, productID)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE product_variants
			 SET stock_quantity = stock_quantity - $1
			 WHERE id = $2 AND stock_quantity >= $1`,
			quantity, variantID)
	}
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInsufficientInventory
	}
	return nil
}

func insertOrderEvent(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     o.ID,
		"user_id":      o.UserID,
		"total":        o.Total,
		"items":        o.Items,
		"completed_at": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_events (order_id, payload, processed, created_at)
		 VALUES ($1, $2, FALSE, NOW())`,
		o.ID, payload)
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}

// RecordFailedPayment persists a declined attempt after the checkout
// transaction rolled back. Payments are append-only, so the failed attempt
// survives while the order it tried to pay for does not exist.
func (r *Repository) RecordFailedPayment(ctx context.Context, userID int64, method string, amount decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, order_id, user_id, method, status, amount, created_at)
		 VALUES ($1, NULL, $2, $3, $4, $5, NOW())`,
		uuid.New(), userID, method, domain.PaymentStatusFailed, amount)
	if err != nil {
		return fmt.Errorf("record failed payment: %w", err)
	}
	return nil
}
