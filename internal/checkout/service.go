// Package checkout converts a cart into a paid order. Initialize is the
// cheap read-only pass that computes totals and surfaces problems early; the
// commit runs as one atomic transaction in the repository, so callers only
// ever observe all-or-nothing outcomes.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart             = repository.ErrEmptyCart
	ErrInsufficientInventory = repository.ErrInsufficientInventory

	// ErrCheckoutFailed is the generic recoverable signal for a commit that
	// rolled back; cart and inventory are guaranteed untouched.
	ErrCheckoutFailed = errors.New("checkout failed")
)

// freeShippingThreshold and flatShippingFee implement the storefront's
// shipping policy: free above the threshold, flat fee otherwise.
var (
	freeShippingThreshold = decimal.NewFromInt(500)
	flatShippingFee       = decimal.NewFromInt(50)
)

type Summary struct {
	Items    []domain.CartItem `json:"items"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	Shipping decimal.Decimal   `json:"shipping"`
	Tax      decimal.Decimal   `json:"tax"`
	Total    decimal.Decimal   `json:"total"`
}

// Repository is defined by the consumer, not the postgres implementation.
type Repository interface {
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	CommitCheckout(ctx context.Context, args repository.CommitArgs) (*domain.Order, error)
	RecordFailedPayment(ctx context.Context, userID int64, method string, amount decimal.Decimal) error
}

type Service struct {
	repo    Repository
	gateway payment.Gateway
	cache   cache.CartCache
	taxRate decimal.Decimal
}

func NewService(repo Repository, gateway payment.Gateway, cartCache cache.CartCache, taxRate decimal.Decimal) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		cache:   cartCache,
		taxRate: taxRate,
	}
}

// Totals derives shipping, tax and grand total from a subtotal.
func (s *Service) Totals(subtotal decimal.Decimal) (shipping, tax, total decimal.Decimal) {
	shipping = flatShippingFee
	if subtotal.GreaterThan(freeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax = subtotal.Mul(s.taxRate).Round(2)
	total = subtotal.Add(shipping).Add(tax)
	return shipping, tax, total
}

// InitializeCheckout loads the authoritative cart, re-validates every line
// and computes totals. Nothing is persisted; this is the last cheap
// validation point before the atomic commit.
func (s *Service) InitializeCheckout(ctx context.Context, userID int64) (*Summary, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	for _, item := range cart.Items {
		if !item.IsAvailable || item.MaxQuantityReached {
			return nil, ErrInsufficientInventory
		}
	}

	subtotal := domain.ComputeMetadata(cart.Items).Subtotal
	shipping, tax, total := s.Totals(subtotal)

	return &Summary{
		Items:    cart.Items,
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    total,
	}, nil
}

// ProcessPayment runs the atomic commit. A declined payment is recorded as
// a failed attempt after the rollback, then surfaced as ErrCheckoutFailed.
// Commits are never auto-retried; the user must re-initiate.
func (s *Service) ProcessPayment(ctx context.Context, userID int64, shippingAddress, method string, details map[string]string) (*domain.Order, error) {
	var attempted decimal.Decimal

	order, err := s.repo.CommitCheckout(ctx, repository.CommitArgs{
		UserID:          userID,
		ShippingAddress: shippingAddress,
		Method:          method,
		Totals:          s.Totals,
		Pay: func(total decimal.Decimal) (bool, error) {
			attempted = total
			res, payErr := s.gateway.Execute(ctx, method, details, total)
			if payErr != nil {
				return false, payErr
			}
			if !res.Success {
				log.Printf("payment declined for user %d: %s", userID, res.Reason)
			}
			return res.Success, nil
		},
	})
	if err != nil {
		if errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrInsufficientInventory) {
			return nil, err
		}
		if errors.Is(err, repository.ErrPaymentDeclined) {
			if recErr := s.repo.RecordFailedPayment(ctx, userID, method, attempted); recErr != nil {
				log.Printf("failed to record declined payment: %v", recErr)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}

	s.invalidateCache(ctx, userID)
	return order, nil
}

func (s *Service) invalidateCache(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}
