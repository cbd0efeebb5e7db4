package checkout

import (
	"context"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockRepository implements Repository for testing.
type MockRepository struct {
	Cart   *domain.Cart
	GetErr error

	CommitErr       error
	CommittedArgs   *repository.CommitArgs
	FailedPayments  []decimal.Decimal
	RecordFailedErr error
}

func (m *MockRepository) GetCart(context.Context, int64) (*domain.Cart, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.Cart, nil
}

func (m *MockRepository) CommitCheckout(_ context.Context, args repository.CommitArgs) (*domain.Order, error) {
	m.CommittedArgs = &args

	subtotal := domain.ComputeMetadata(m.Cart.Items).Subtotal
	shipping, tax, total := args.Totals(subtotal)

	ok, err := args.Pay(total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrPaymentDeclined
	}
	if m.CommitErr != nil {
		return nil, m.CommitErr
	}

	items := make([]domain.OrderItem, 0, len(m.Cart.Items))
	for _, ci := range m.Cart.Items {
		items = append(items, domain.OrderItem{
			ID:          uuid.New(),
			ProductID:   ci.ProductID,
			VariantID:   ci.VariantID,
			ProductName: ci.ProductName,
			Quantity:    ci.Quantity,
			Price:       ci.UnitPrice,
		})
	}

	return &domain.Order{
		ID:            uuid.New(),
		UserID:        args.UserID,
		Status:        domain.OrderStatusPaid,
		Subtotal:      subtotal,
		ShippingTotal: shipping,
		TaxTotal:      tax,
		Total:         total,
		Items:         items,
	}, nil
}

func (m *MockRepository) RecordFailedPayment(_ context.Context, _ int64, _ string, amount decimal.Decimal) error {
	if m.RecordFailedErr != nil {
		return m.RecordFailedErr
	}
	m.FailedPayments = append(m.FailedPayments, amount)
	return nil
}

// MockCache counts invalidations.
type MockCache struct {
	Deleted []int64
}

func (m *MockCache) Get(context.Context, int64) (*domain.Cart, error) {
	return nil, cache.ErrCacheMiss
}
func (m *MockCache) Set(context.Context, int64, *domain.Cart) error { return nil }

func (m *MockCache) Delete(_ context.Context, userID int64) error {
	m.Deleted = append(m.Deleted, userID)
	return nil
}
