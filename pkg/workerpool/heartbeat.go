package workerpool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PresenceHeartbeat periodically refreshes one worker's liveness flag.
// A missed beat beyond the presence TTL makes the worker invisible to the
// scheduler, which is the intended crash signal.
type PresenceHeartbeat struct {
	// Required components
	Registry *Registry
	Log      *zap.Logger
	// Required config
	WorkerID string
	Interval time.Duration
}

// Run refreshes presence until the context is canceled.
// Refresh failures are logged, not fatal; the TTL safety net bounds the harm.
func (h *PresenceHeartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.Registry.Heartbeat(ctx, h.WorkerID); err != nil && ctx.Err() == nil {
				h.Log.Warn("Failed to refresh worker presence",
					zap.String("worker", h.WorkerID), zap.Error(err))
			}
		}
	}
}
