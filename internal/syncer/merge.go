package syncer

import (
	"context"
	"fmt"

	"github.com/fjod/go_storefront/internal/notify"
)

// SyncAnonymousCart merges the still-present anonymous local items into the
// just-established authoritative server cart. Server items are the
// conflict-resolution baseline and local values are layered on top, so a
// (product, variant) present on both sides ends at the local quantity.
// Local items are replayed to the server sequentially; a partial failure
// leaves the session anonymous and re-raises so the caller retries instead
// of silently losing items. Only a full success flips the session out of
// anonymous mode.
func (c *Coordinator) SyncAnonymousCart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authenticated {
		return nil
	}

	userID, ok := c.session.CurrentUserID()
	if !ok {
		return ErrNotAuthenticated
	}

	serverItems, err := c.api.GetCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch server cart for merge: %w", err)
	}

	serverQty := make(map[[2]int64]int, len(serverItems))
	for _, item := range serverItems {
		serverQty[[2]int64{item.ProductID, item.VariantID}] = item.Quantity
	}

	// Replay local items sequentially. The server API is additive, so a
	// conflict is settled by sending the signed difference rather than a
	// blind overwrite.
	for _, local := range c.store.Items() {
		have := serverQty[[2]int64{local.ProductID, local.VariantID}]
		delta := local.Quantity - have

		var replayErr error
		switch {
		case delta > 0:
			replayErr = c.api.AddItem(ctx, userID, local.ProductID, local.VariantID, delta)
		case delta < 0:
			replayErr = c.api.RemoveItem(ctx, userID, local.ProductID, local.VariantID, -delta)
		}
		if replayErr != nil {
			return fmt.Errorf("replay local item (product %d): %w", local.ProductID, replayErr)
		}
	}

	// Fetch the merged result, re-validate availability across it and make
	// it the local truth.
	merged, err := c.api.GetCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch merged cart: %w", err)
	}
	c.annotateAvailability(ctx, merged)
	c.store.MergeServerCart(merged)

	c.userID = userID
	c.authenticated = true
	c.notifier.Notify(notify.KindSuccess, "your cart has been restored")
	return nil
}

// Logout drops server affinity immediately. Local items survive as a fresh
// anonymous cart.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authenticated = false
	c.userID = 0
}
