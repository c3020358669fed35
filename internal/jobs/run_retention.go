package jobs

import (
	"context"
	"log"
	"time"

	"quorum/console/internal/config"
	"quorum/console/internal/db"
)

// StartRunRetentionJob periodically deletes bulk-run audit records older
// than the configured age.
func StartRunRetentionJob(ctx context.Context, cfg config.Config, store *db.Store) {
	if !cfg.RunRetentionJobEnabled {
		return
	}
	if store == nil {
		log.Printf("run retention job disabled: store not configured")
		return
	}
	interval := cfg.RunRetentionInterval
	if interval <= 0 {
		interval = time.Hour
	}
	age := cfg.RunRetentionAge
	if age <= 0 {
		age = 30 * 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-age)
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				deleted, err := store.DeleteRunsBefore(tickCtx, cutoff)
				cancel()
				if err != nil {
					log.Printf("run retention job error: %v", err)
					continue
				}
				if deleted > 0 {
					log.Printf("run retention job deleted %d records", deleted)
				}
			}
		}
	}()
}
