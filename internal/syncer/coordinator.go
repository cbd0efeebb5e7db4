// Package syncer owns all client↔server cart traffic. Mutations are applied
// to the local store first for perceived responsiveness; a failed
// authoritative call triggers a full resync instead of a targeted revert,
// accepting brief visible divergence. Operations on one coordinator are
// serialized so in-flight traffic against the same cart cannot race.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/inventory"
	"github.com/fjod/go_storefront/internal/localcart"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/session"
)

var (
	ErrInvalidQuantity       = localcart.ErrInvalidQuantity
	ErrItemNotFound          = localcart.ErrItemNotFound
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrSyncFailed            = errors.New("cart sync failed")
	ErrNotAuthenticated      = errors.New("no authenticated session")
)

const (
	defaultMaxRetries = 3
	maxBackoff        = 30 * time.Second
	baseBackoff       = time.Second
)

// CartAPI is the server cart surface as seen from the client; defined by
// the consumer, implemented by the HTTP client.
type CartAPI interface {
	GetCart(ctx context.Context, userID int64) ([]domain.CartItem, error)
	AddItem(ctx context.Context, userID, productID, variantID int64, quantity int) error
	RemoveItem(ctx context.Context, userID, productID, variantID int64, quantity int) error
	Availability(ctx context.Context, productID, variantID int64) (int, error)
}

// Coordinator mediates consistency between one local cart and its
// authoritative server cart. It is an owned, per-session object; create it
// on session start and drop it on teardown.
type Coordinator struct {
	mu sync.Mutex

	store    *localcart.Store
	api      CartAPI
	session  session.Session
	notifier notify.Notifier

	maxRetries int
	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error

	authenticated bool
	userID        int64
	lastSync      time.Time
}

func NewCoordinator(store *localcart.Store, api CartAPI, sess session.Session, notifier notify.Notifier) *Coordinator {
	return &Coordinator{
		store:      store,
		api:        api,
		session:    sess,
		notifier:   notifier,
		maxRetries: defaultMaxRetries,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoffDelay is min(1s * 2^attempt, 30s).
func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << uint(attempt)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// Authenticated reports whether the coordinator has an authoritative server
// cart to talk to.
func (c *Coordinator) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// LastSync returns the time of the last successful full sync.
func (c *Coordinator) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// Store exposes the local cart for read-side projections.
func (c *Coordinator) Store() *localcart.Store {
	return c.store
}

// SyncWithServer fetches the authoritative cart, validates every returned
// item and replaces the local view. Failures are retried with exponential
// backoff; after exhaustion the previous local state is left intact and a
// recoverable ErrSyncFailed is surfaced. Anonymous sessions skip the sync
// entirely, there is no authoritative cart to fetch.
func (c *Coordinator) SyncWithServer(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		return nil
	}
	return c.syncLocked(ctx)
}

func (c *Coordinator) syncLocked(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoffDelay(attempt-1)); err != nil {
				return err
			}
		}

		items, err := c.api.GetCart(ctx, c.userID)
		if err != nil {
			lastErr = err
			log.Printf("cart sync attempt %d failed: %v", attempt+1, err)
			continue
		}

		c.annotateAvailability(ctx, items)
		c.store.MergeServerCart(items)
		c.lastSync = time.Now()
		return nil
	}

	c.notifier.Notify(notify.KindWarning, "your cart may be out of date")
	return fmt.Errorf("%w: %v", ErrSyncFailed, lastErr)
}

func (c *Coordinator) annotateAvailability(ctx context.Context, items []domain.CartItem) {
	for i := range items {
		available, err := c.api.Availability(ctx, items[i].ProductID, items[i].VariantID)
		if err != nil {
			// availability is advisory here; leave flags optimistic
			items[i].IsAvailable = true
			continue
		}
		inventory.Annotate(&items[i], available)
	}
}

// AddItem validates inventory (authenticated sessions only), applies the
// optimistic local add, then issues the authoritative add. On server
// failure the optimistic state is reconciled via a full resync and the
// error is rethrown.
func (c *Coordinator) AddItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authenticated {
		if err := c.checkAvailability(ctx, item.ProductID, item.VariantID, c.localQuantity(item)+item.Quantity); err != nil {
			return domain.CartItem{}, err
		}
	}

	added, err := c.store.AddItem(item)
	if err != nil {
		return domain.CartItem{}, err
	}

	if !c.authenticated {
		return added, nil
	}

	if err := c.api.AddItem(ctx, c.userID, item.ProductID, item.VariantID, item.Quantity); err != nil {
		c.reconcile(ctx)
		return domain.CartItem{}, fmt.Errorf("authoritative add failed: %w", err)
	}
	return added, nil
}

// RemoveItems applies all local removals optimistically, then replays each
// removal against the server sequentially. Batches are deliberately not
// fanned out; ordering of the authoritative decrements must stay
// deterministic.
func (c *Coordinator) RemoveItems(ctx context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	type removal struct {
		productID int64
		variantID int64
		quantity  int
	}

	removals := make([]removal, 0, len(ids))
	for _, id := range ids {
		if item, ok := c.store.Get(id); ok {
			removals = append(removals, removal{item.ProductID, item.VariantID, item.Quantity})
		}
		c.store.RemoveItem(id)
	}

	if !c.authenticated {
		return nil
	}

	for _, rm := range removals {
		if err := c.api.RemoveItem(ctx, c.userID, rm.productID, rm.variantID, rm.quantity); err != nil {
			c.reconcile(ctx)
			return fmt.Errorf("authoritative remove failed: %w", err)
		}
	}
	return nil
}

// UpdateQuantity rejects quantities below 1, validates inventory, applies
// the local update and then issues an incremental add or remove for the
// signed delta. The authoritative store's mutation API is additive, so a
// blind "set to N" is never sent.
func (c *Coordinator) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.store.Get(id)
	if !ok {
		return ErrItemNotFound
	}

	if c.authenticated {
		if err := c.checkAvailability(ctx, prev.ProductID, prev.VariantID, quantity); err != nil {
			return err
		}
	}

	if err := c.store.UpdateQuantity(id, quantity); err != nil {
		return err
	}

	if !c.authenticated {
		return nil
	}

	delta := quantity - prev.Quantity
	var err error
	switch {
	case delta > 0:
		err = c.api.AddItem(ctx, c.userID, prev.ProductID, prev.VariantID, delta)
	case delta < 0:
		err = c.api.RemoveItem(ctx, c.userID, prev.ProductID, prev.VariantID, -delta)
	default:
		return nil
	}
	if err != nil {
		c.reconcile(ctx)
		return fmt.Errorf("authoritative update failed: %w", err)
	}
	return nil
}

func (c *Coordinator) checkAvailability(ctx context.Context, productID, variantID int64, requested int) error {
	available, err := c.api.Availability(ctx, productID, variantID)
	if err != nil {
		// can't check right now; the server re-checks under lock anyway
		return nil
	}
	if !inventory.Validate(requested, available).OK {
		return ErrInsufficientInventory
	}
	return nil
}

func (c *Coordinator) localQuantity(item domain.CartItem) int {
	for _, existing := range c.store.Items() {
		if existing.ProductID == item.ProductID && existing.VariantID == item.VariantID {
			return existing.Quantity
		}
	}
	return 0
}

// reconcile re-fetches authoritative state after a failed mutation. The
// optimistic local change is not reverted directly; the server view simply
// replaces it.
func (c *Coordinator) reconcile(ctx context.Context) {
	if err := c.syncLocked(ctx); err != nil {
		log.Printf("reconcile after failed mutation: %v", err)
	}
}
