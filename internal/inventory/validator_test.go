package inventory

import (
	"testing"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		available int
		wantOK    bool
		wantQty   int
	}{
		{"within stock", 2, 5, true, 2},
		{"exact stock", 5, 5, true, 5},
		{"clamped to stock", 7, 5, false, 5},
		{"no stock", 1, 0, false, 0},
		{"negative stock", 1, -3, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Validate(tt.requested, tt.available)
			assert.Equal(t, tt.wantOK, d.OK)
			assert.Equal(t, tt.wantQty, d.ClampedQuantity)
		})
	}
}

func TestValidate_UnavailableOnlyWhenNoStock(t *testing.T) {
	assert.True(t, Validate(3, 0).Unavailable)
	assert.False(t, Validate(9, 4).Unavailable)
}

func TestAnnotate_SetsFlags(t *testing.T) {
	item := domain.CartItem{ProductID: 1, Quantity: 4}

	Annotate(&item, 2)
	assert.True(t, item.IsAvailable)
	assert.True(t, item.MaxQuantityReached)

	Annotate(&item, 0)
	assert.False(t, item.IsAvailable)
	assert.False(t, item.MaxQuantityReached)

	Annotate(&item, 10)
	assert.True(t, item.IsAvailable)
	assert.False(t, item.MaxQuantityReached)
}
