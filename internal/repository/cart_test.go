package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepositoryWithDB(db), mock
}

func TestGetCart_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, user_id, created_at, updated_at FROM carts`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}))

	_, err := repo.GetCart(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCart_AnnotatesAvailability(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, user_id, created_at, updated_at FROM carts`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}).
			AddRow(int64(10), int64(1), now, now))

	itemRows := sqlmock.NewRows([]string{
		"id", "product_id", "variant_id", "quantity", "unit_price",
		"name", "variant_name", "available", "added_at",
	}).
		AddRow("item-a", int64(100), int64(0), 2, "9.99", "Widget", "", 5, now).
		AddRow("item-b", int64(200), int64(0), 4, "5.00", "Gadget", "", 2, now).
		AddRow("item-c", int64(300), int64(0), 1, "1.50", "Gone", "", 0, now)
	mock.ExpectQuery(`SELECT ci.id, ci.product_id, ci.variant_id`).
		WithArgs(int64(10)).
		WillReturnRows(itemRows)

	cart, err := repo.GetCart(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 3)

	assert.True(t, cart.Items[0].IsAvailable)
	assert.False(t, cart.Items[0].MaxQuantityReached)

	assert.True(t, cart.Items[1].IsAvailable)
	assert.True(t, cart.Items[1].MaxQuantityReached)

	assert.False(t, cart.Items[2].IsAvailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItem_RejectsInvalidQuantity(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.AddItem(context.Background(), 1, 100, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItem_InsufficientInventoryRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO carts`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id FROM carts WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT price, stock_quantity FROM products`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"price", "stock_quantity"}).AddRow("9.99", 3))
	mock.ExpectQuery(`SELECT id, quantity FROM cart_items`).
		WithArgs(int64(10), int64(100), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}).AddRow("item-a", 2))
	mock.ExpectRollback()

	err := repo.AddItem(context.Background(), 1, 100, 0, 2)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItem_CombinedQuantityWithinStockCommits(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO carts`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id FROM carts WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT price, stock_quantity FROM products`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"price", "stock_quantity"}).AddRow("9.99", 5))
	mock.ExpectQuery(`SELECT id, quantity FROM cart_items`).
		WithArgs(int64(10), int64(100), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}).AddRow("item-a", 2))
	mock.ExpectExec(`UPDATE cart_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE carts SET updated_at`).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AddItem(context.Background(), 1, 100, 0, 3)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveItem_MissingLine(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM carts WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT id, quantity, unit_price FROM cart_items`).
		WithArgs(int64(10), int64(100), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity", "unit_price"}))
	mock.ExpectRollback()

	err := repo.RemoveItem(context.Background(), 1, 100, 0, 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveItem_LastUnitsDeleteLineAndEmptyCart(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM carts WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT id, quantity, unit_price FROM cart_items`).
		WithArgs(int64(10), int64(100), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity", "unit_price"}).
			AddRow("item-a", 2, "9.99"))
	mock.ExpectExec(`DELETE FROM cart_items WHERE id = \$1`).
		WithArgs("item-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cart_items`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`DELETE FROM carts WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RemoveItem(context.Background(), 1, 100, 0, 2)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQuantities_RejectsZeroBeforeTouchingDB(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.UpdateQuantities(context.Background(), 1, []QuantityUpdate{{ItemID: "item-a", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailability_UnknownProduct(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT stock_quantity FROM products`).
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}))

	_, err := repo.Availability(context.Background(), 999, 0)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCart_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM carts WHERE user_id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteCart(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
