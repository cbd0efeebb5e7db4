package cartsvc

import (
	"context"
	"log"
	"time"
)

const (
	// StalenessWindow is how long an untouched cart survives before the
	// background cleanup removes it.
	StalenessWindow = 30 * 24 * time.Hour

	cleanupInterval = time.Hour
)

// RunCleanup deletes stale carts on a ticker until the context is cancelled.
func (s *Service) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := s.repo.DeleteStaleCarts(ctx, StalenessWindow)
			if err != nil {
				log.Printf("stale cart cleanup failed: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("removed %d stale carts", deleted)
			}
		case <-ctx.Done():
			return
		}
	}
}
