package main

import (
	"context"
	"log"
	"time"

	"github.com/nadmax/pipepulse/internal/dashboard"
)

// startCacheWarmer recomputes the default dashboard snapshot once per TTL so
// readers rarely pay for a live computation.
func startCacheWarmer(ctx context.Context, dash *dashboard.Service, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warmDashboard(ctx, dash)
		}
	}
}

func warmDashboard(ctx context.Context, dash *dashboard.Service) {
	if _, err := dash.Refresh(ctx, 0); err != nil {
		log.Printf("Failed to warm dashboard cache: %v", err)
	}
}
