package order

import (
	"context"
	"log"
	"time"
)

const sweepBatchSize = 200

// StartExpirySweeper expires overdue orders every interval until ctx is done.
// Reads still expire orders on their own; the sweeper only keeps listings
// and analytics closer to the truth between reads.
func StartExpirySweeper(ctx context.Context, svc Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireOverdue(ctx, sweepBatchSize)
			if err != nil {
				log.Printf("Order expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Order expiry sweep expired %d orders", n)
			}
		}
	}
}
