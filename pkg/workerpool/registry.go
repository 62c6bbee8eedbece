// Package workerpool tracks worker identities, liveness and load.
//
// Pool membership is a loose historical fact; the short-TTL presence flag is
// the authoritative liveness signal. Schedulers must always consult presence,
// never membership alone, before handing a worker new sessions.
package workerpool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultPresenceTTL bounds how long a silent worker still counts as alive.
const DefaultPresenceTTL = 30 * time.Second

// DefaultHeartbeatInterval is the presence refresh period.
const DefaultHeartbeatInterval = 10 * time.Second

// Keys derives the Redis keys for pool state under a common prefix.
// The prefix must match the one used by the session store.
type Keys struct {
	prefix string
}

// KeysForPrefix creates Keys rooted at a namespace prefix.
func KeysForPrefix(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Pool is the set of known worker ids.
func (k Keys) Pool() string {
	return k.prefix + ":workers:pool"
}

// Presence is the per-worker liveness flag.
func (k Keys) Presence(workerID string) string {
	return k.prefix + ":workers:presence:" + workerID
}

// Sessions is the per-worker set of bound session keys.
func (k Keys) Sessions(workerID string) string {
	return k.prefix + ":workers:" + workerID + ":sessions"
}

// CredentialClaim is the reservation key for one credential.
// Credentials are addressed by digest so raw tokens never appear in keys.
func (k Keys) CredentialClaim(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return k.prefix + ":workers:claims:" + hex.EncodeToString(sum[:])
}

// Registry tracks pool membership, liveness and per-worker session load.
type Registry struct {
	// Required components
	Redis *redis.Client
	// Required config
	Keys        Keys
	PresenceTTL time.Duration
}

// Register adds a worker to pool membership and marks it present.
func (r *Registry) Register(ctx context.Context, workerID string) error {
	if err := r.Redis.SAdd(ctx, r.Keys.Pool(), workerID).Err(); err != nil {
		return fmt.Errorf("failed to register worker %s: %w", workerID, err)
	}
	return r.Heartbeat(ctx, workerID)
}

// Heartbeat refreshes the presence flag only.
func (r *Registry) Heartbeat(ctx context.Context, workerID string) error {
	err := r.Redis.Set(ctx, r.Keys.Presence(workerID), "1", r.PresenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to refresh presence of %s: %w", workerID, err)
	}
	return nil
}

// IsPresent reports whether the worker's liveness flag is still alive.
func (r *Registry) IsPresent(ctx context.Context, workerID string) (bool, error) {
	n, err := r.Redis.Exists(ctx, r.Keys.Presence(workerID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Unregister removes membership, presence and the worker's session set.
func (r *Registry) Unregister(ctx context.Context, workerID string) error {
	if err := r.Redis.SRem(ctx, r.Keys.Pool(), workerID).Err(); err != nil {
		return err
	}
	return r.Redis.Del(ctx,
		r.Keys.Presence(workerID),
		r.Keys.Sessions(workerID),
	).Err()
}

// Prune drops a stale id from pool membership without touching anything else.
func (r *Registry) Prune(ctx context.Context, workerID string) error {
	return r.Redis.SRem(ctx, r.Keys.Pool(), workerID).Err()
}

// Pool lists the known worker ids in deterministic order.
func (r *Registry) Pool(ctx context.Context) ([]string, error) {
	ids, err := r.Redis.SMembers(ctx, r.Keys.Pool()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// SessionCount returns how many sessions are currently bound to a worker.
func (r *Registry) SessionCount(ctx context.Context, workerID string) (int64, error) {
	return r.Redis.SCard(ctx, r.Keys.Sessions(workerID)).Result()
}
