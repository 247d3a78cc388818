package session

import (
	"context"
	"log/slog"
	"time"
)

// EvictCallback is called for every session the TTL worker evicts.
type EvictCallback func(userID string)

// StartTTLWorker periodically evicts sessions idle for longer than ttl until
// ctx is done.
func StartTTLWorker(ctx context.Context, mgr *Manager, ttl, interval time.Duration, onEvict EvictCallback) {
	if interval <= 0 {
		interval = ttl / 4
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpired(mgr, ttl, onEvict)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(mgr *Manager, ttl time.Duration, onEvict EvictCallback) {
	evicted := mgr.Sweep(ttl)
	if len(evicted) == 0 {
		return
	}

	for _, userID := range evicted {
		slog.Info("TTL worker evicted idle session", "user_id", userID)
		if onEvict != nil {
			onEvict(userID)
		}
	}
	slog.Info("TTL worker sweep completed", "evicted", len(evicted), "remaining", mgr.Len())
}
