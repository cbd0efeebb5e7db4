// Package inventory holds the pure quantity-clamping rules shared by the
// client coordinator and the server cart service. It never touches storage.
package inventory

import "github.com/fjod/go_storefront/internal/domain"

// Decision is the outcome of validating a requested quantity against the
// latest known availability.
type Decision struct {
	OK              bool
	ClampedQuantity int
	Unavailable     bool
}

// Validate compares a requested quantity with the available quantity for a
// product or variant. available <= 0 marks the item unavailable; a request
// above availability is clamped down to it.
func Validate(requested, available int) Decision {
	if available <= 0 {
		return Decision{OK: false, ClampedQuantity: 0, Unavailable: true}
	}
	if requested > available {
		return Decision{OK: false, ClampedQuantity: available}
	}
	return Decision{OK: true, ClampedQuantity: requested}
}

// Annotate applies a validation decision to a cart item's display flags.
func Annotate(item *domain.CartItem, available int) Decision {
	d := Validate(item.Quantity, available)
	item.IsAvailable = !d.Unavailable
	item.MaxQuantityReached = !d.OK && !d.Unavailable
	return d
}
