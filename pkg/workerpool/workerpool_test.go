package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.anankor.net/dispatch/pkg/redistest"
	"go.uber.org/zap/zaptest"
)

func TestRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	registry := Registry{
		Redis:       rd.Client,
		Keys:        KeysForPrefix("anankor"),
		PresenceTTL: DefaultPresenceTTL,
	}

	require.NoError(t, registry.Register(ctx, "w1"))
	require.NoError(t, registry.Register(ctx, "w2"))

	present, err := registry.IsPresent(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, present)

	pool, err := registry.Pool(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, pool)

	count, err := registry.SessionCount(ctx, "w1")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, registry.Unregister(ctx, "w1"))
	present, err = registry.IsPresent(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, present)
	pool, err = registry.Pool(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, pool)
}

func TestPresenceExpires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	registry := Registry{
		Redis:       rd.Client,
		Keys:        KeysForPrefix("anankor"),
		PresenceTTL: 100 * time.Millisecond,
	}

	require.NoError(t, registry.Register(ctx, "w1"))
	time.Sleep(200 * time.Millisecond)
	present, err := registry.IsPresent(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, present)

	// Membership outlives presence until pruned.
	pool, err := registry.Pool(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, pool)
	require.NoError(t, registry.Prune(ctx, "w1"))
	pool, err = registry.Pool(ctx)
	require.NoError(t, err)
	assert.Empty(t, pool)
}

func TestClaimExclusive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	claimer := Claimer{
		Redis: rd.Client,
		Log:   zaptest.NewLogger(t),
		Keys:  KeysForPrefix("anankor"),
		TTL:   DefaultClaimTTL,
	}
	credentials := []string{"token-a", "token-b"}

	first, err := claimer.Claim(ctx, credentials)
	require.NoError(t, err)
	second, err := claimer.Claim(ctx, credentials)
	require.NoError(t, err)
	assert.NotEqual(t, first.Credential, second.Credential)
	assert.NotEqual(t, first.WorkerID, second.WorkerID)

	// Pool exhausted.
	_, err = claimer.Claim(ctx, credentials)
	assert.True(t, errors.Is(err, ErrAllCredentialsClaimed), "got %v", err)

	// Releasing frees the credential for the next process.
	require.NoError(t, first.Release(ctx))
	third, err := claimer.Claim(ctx, credentials)
	require.NoError(t, err)
	assert.Equal(t, first.Credential, third.Credential)

	require.NoError(t, second.Release(ctx))
	require.NoError(t, third.Release(ctx))
}

func TestClaimNoCredentials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	claimer := Claimer{
		Redis: rd.Client,
		Log:   zaptest.NewLogger(t),
		Keys:  KeysForPrefix("anankor"),
		TTL:   DefaultClaimTTL,
	}
	_, err := claimer.Claim(ctx, nil)
	assert.Error(t, err)
}

func TestCredentialClaimKeyHidesToken(t *testing.T) {
	keys := KeysForPrefix("anankor")
	key := keys.CredentialClaim("super-secret-token")
	assert.NotContains(t, key, "super-secret-token")
	// Same credential, same key.
	assert.Equal(t, key, keys.CredentialClaim("super-secret-token"))
	assert.NotEqual(t, key, keys.CredentialClaim("other-token"))
}

func TestPresenceHeartbeat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	registry := Registry{
		Redis:       rd.Client,
		Keys:        KeysForPrefix("anankor"),
		PresenceTTL: 300 * time.Millisecond,
	}
	require.NoError(t, registry.Register(ctx, "w1"))

	heartbeat := PresenceHeartbeat{
		Registry: &registry,
		Log:      zaptest.NewLogger(t),
		WorkerID: "w1",
		Interval: 100 * time.Millisecond,
	}
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = heartbeat.Run(hbCtx)
	}()

	// The beat keeps presence alive well past the TTL.
	time.Sleep(600 * time.Millisecond)
	present, err := registry.IsPresent(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, present)

	stopHeartbeat()
	<-done
	time.Sleep(400 * time.Millisecond)
	present, err = registry.IsPresent(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, present)
}
