// Package cartsvc is the authoritative mutation surface for carts. All
// writes go through the relational store with row locks; the redis cache is
// a read accelerator that gets invalidated on every write.
package cartsvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

// CartRepository is defined by the consumer, not the postgres implementation.
type CartRepository interface {
	GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error)
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID, variantID int64, quantity int) error
	RemoveItem(ctx context.Context, userID, productID, variantID int64, quantity int) error
	UpdateQuantities(ctx context.Context, userID int64, updates []repository.QuantityUpdate) error
	ValidateInventory(ctx context.Context, userID int64) ([]repository.InventoryViolation, error)
	Availability(ctx context.Context, productID, variantID int64) (int, error)
	DeleteStaleCarts(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Service struct {
	repo  CartRepository
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
}

func NewService(repo CartRepository, cartCache cache.CartCache) *Service {
	return &Service{
		repo:  repo,
		cache: cartCache,
	}
}

func (s *Service) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(fmt.Sprint(userID), func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, userID)
		if errors.Is(errGet, repository.ErrCartNotFound) {
			// no cart yet is an empty cart, not an error
			return &domain.Cart{
				UserID:    userID,
				Items:     nil,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			errSet := s.cache.Set(context.Background(), userID, cart)
			if errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *Service) GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.repo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(userID)
	return cart, nil
}

func (s *Service) AddToCart(ctx context.Context, userID, productID, variantID int64, quantity int) error {
	if err := s.repo.AddItem(ctx, userID, productID, variantID, quantity); err != nil {
		log.Printf("repo add item error: %v", err)
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *Service) RemoveFromCart(ctx context.Context, userID, productID, variantID int64, quantity int) error {
	if err := s.repo.RemoveItem(ctx, userID, productID, variantID, quantity); err != nil {
		log.Printf("repo remove item error: %v", err)
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *Service) UpdateQuantities(ctx context.Context, userID int64, updates []repository.QuantityUpdate) error {
	if err := s.repo.UpdateQuantities(ctx, userID, updates); err != nil {
		log.Printf("repo update quantities error: %v", err)
		return err
	}

	s.invalidateCache(userID)
	return nil
}

// ValidateInventory reports lines exceeding availability without mutating
// anything; coordinators use it to decide whether to warn the user.
func (s *Service) ValidateInventory(ctx context.Context, userID int64) ([]repository.InventoryViolation, error) {
	return s.repo.ValidateInventory(ctx, userID)
}

func (s *Service) Availability(ctx context.Context, productID, variantID int64) (int, error) {
	return s.repo.Availability(ctx, productID, variantID)
}

func (s *Service) invalidateCache(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}
