package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrCartNotFound          = errors.New("cart not found")
	ErrItemNotFound          = errors.New("item not found in cart")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrEmptyCart             = errors.New("cart is empty, nothing to checkout")
	ErrPaymentDeclined       = errors.New("payment was declined")
	ErrOrderNotFound         = errors.New("order not found")
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

// ClassifyError maps postgres error codes onto retry classes so transaction
// helpers can tell a serialization conflict from a real failure.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}
