package scheduler

import (
	"context"
	"time"

	"go.anankor.net/dispatch/pkg/session"
	"go.anankor.net/dispatch/pkg/workerpool"
	"go.uber.org/zap"
)

// Sweeper proactively reclaims sessions bound to workers that lost presence.
//
// It is optional: lazy recovery on the next job touching a session, plus the
// TTL safety net, already guarantee correctness. Running a sweeper merely
// shortens the window in which orphaned sessions hold guild slots.
type Sweeper struct {
	// Required components
	Sessions *session.Store
	Pool     *workerpool.Registry
	Log      *zap.Logger
	// Required config
	Interval time.Duration
}

// Run sweeps until the context is canceled.
func (sw *Sweeper) Run(ctx context.Context) error {
	for {
		if err := sw.step(ctx); err != nil {
			return err
		}
		timer := time.NewTimer(sw.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (sw *Sweeper) step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pool, err := sw.Pool.Pool(ctx)
	if err != nil {
		return err
	}
	for _, workerID := range pool {
		present, err := sw.Pool.IsPresent(ctx, workerID)
		if err != nil {
			return err
		}
		if present {
			continue
		}
		sessionKeys, err := sw.Sessions.WorkerSessions(ctx, workerID)
		if err != nil {
			return err
		}
		for _, sessionKey := range sessionKeys {
			meta, err := sw.Sessions.GetMetadata(ctx, sessionKey)
			if err != nil {
				return err
			}
			if err := sw.Sessions.Release(ctx, sessionKey, meta); err != nil {
				return err
			}
			sweptSessions.Inc()
			sw.Log.Info("Reclaimed orphaned session",
				zap.String("session_key", sessionKey),
				zap.String("worker", workerID))
		}
		if err := sw.Pool.Prune(ctx, workerID); err != nil {
			return err
		}
	}
	return nil
}
