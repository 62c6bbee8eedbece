package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultClaimTTL bounds how long a crashed process keeps its credential.
const DefaultClaimTTL = 60 * time.Second

// ErrAllCredentialsClaimed gets raised when every credential of the fixed
// pool is already reserved by another process.
var ErrAllCredentialsClaimed = errors.New("all worker credentials are claimed")

// Claimer reserves one credential of a fixed pool for this process.
type Claimer struct {
	// Required components
	Redis *redis.Client
	Log   *zap.Logger
	// Required config
	Keys Keys
	TTL  time.Duration
}

// Claim holds a reserved credential and the worker identity bound to it.
// Release must be called on graceful shutdown; if the process dies without
// releasing, the reservation expires after the claim TTL.
type Claim struct {
	WorkerID   string
	Credential string

	redis  *redis.Client
	log    *zap.Logger
	key    string
	ttl    time.Duration
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Claim tries each credential's reservation key with an atomic
// set-if-absent; the first success wins and generates a fresh worker id.
// A background heartbeat renews the reservation at half the TTL.
func (c *Claimer) Claim(ctx context.Context, credentials []string) (*Claim, error) {
	if len(credentials) == 0 {
		return nil, errors.New("no worker credentials configured")
	}
	workerID := "worker-" + uuid.New().String()
	for _, credential := range credentials {
		key := c.Keys.CredentialClaim(credential)
		ok, err := c.Redis.SetNX(ctx, key, workerID, c.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to reserve credential: %w", err)
		}
		if !ok {
			continue
		}
		heartbeatCtx, cancel := context.WithCancel(context.Background())
		claim := &Claim{
			WorkerID:   workerID,
			Credential: credential,
			redis:      c.Redis,
			log:        c.Log,
			key:        key,
			ttl:        c.TTL,
			cancel:     cancel,
		}
		claim.wg.Add(1)
		go func() {
			defer claim.wg.Done()
			claim.heartbeat(heartbeatCtx)
		}()
		return claim, nil
	}
	return nil, ErrAllCredentialsClaimed
}

func (cl *Claim) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(cl.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cl.redis.Expire(ctx, cl.key, cl.ttl).Err(); err != nil && ctx.Err() == nil {
				cl.log.Warn("Failed to renew credential reservation",
					zap.String("worker", cl.WorkerID), zap.Error(err))
			}
		}
	}
}

// Release stops the heartbeat and deletes the reservation, immediately
// freeing the credential for another process.
func (cl *Claim) Release(ctx context.Context) error {
	cl.cancel()
	cl.wg.Wait()
	if err := cl.redis.Del(ctx, cl.key).Err(); err != nil {
		return fmt.Errorf("failed to release credential reservation: %w", err)
	}
	return nil
}
