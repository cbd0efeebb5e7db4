// Package localcart is the client-held projection of a cart. It is an owned,
// per-session object created on session start and torn down on logout; no
// package-level state. All mutations are synchronous and optimistic, with no
// network awareness and no inventory checks of its own.
package localcart

import (
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrItemNotFound    = errors.New("item not found in local cart")
)

type key struct {
	productID int64
	variantID int64
}

type Store struct {
	mu    sync.Mutex
	items map[key]*domain.CartItem
}

func NewStore() *Store {
	return &Store{items: make(map[key]*domain.CartItem)}
}

// AddItem merges by (product, variant): an existing line gains the incoming
// quantity, otherwise a new line with a locally generated id is created.
// Returns the resulting item.
func (s *Store) AddItem(item domain.CartItem) (domain.CartItem, error) {
	if item.Quantity < 1 {
		return domain.CartItem{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{item.ProductID, item.VariantID}
	if existing, ok := s.items[k]; ok {
		existing.Quantity += item.Quantity
		return *existing, nil
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	item.IsAvailable = true
	s.items[k] = &item
	return item, nil
}

// RemoveItem deletes the item with the given id. Removing an absent id is a
// no-op: the item is already gone, which is what the caller wanted.
func (s *Store) RemoveItem(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, item := range s.items {
		if item.ID == id {
			delete(s.items, k)
			return
		}
	}
}

// UpdateQuantity replaces the quantity in place. Quantities below 1 are
// rejected; callers must remove the item instead of zeroing it.
func (s *Store) UpdateQuantity(id string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.ID == id {
			item.Quantity = quantity
			return nil
		}
	}
	return ErrItemNotFound
}

// Get returns the item with the given id.
func (s *Store) Get(id string) (domain.CartItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.ID == id {
			return *item, true
		}
	}
	return domain.CartItem{}, false
}

// MergeServerCart replaces local state with the server's view, used after
// any successful full sync.
func (s *Store) MergeServerCart(serverItems []domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[key]*domain.CartItem, len(serverItems))
	for _, item := range serverItems {
		it := item
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		s.items[key{it.ProductID, it.VariantID}] = &it
	}
}

// Items returns a copy of the current items.
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CartItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	return out
}

// Metadata recomputes counts and subtotal on every call.
func (s *Store) Metadata() domain.CartMetadata {
	return domain.ComputeMetadata(s.Items())
}

// Clear drops every item, leaving the store usable as a fresh cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[key]*domain.CartItem)
}
