package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.anankor.net/dispatch/pkg/redistest"
)

func TestComputeKey(t *testing.T) {
	assert.Equal(t, "g1/v1", ComputeKey("g1", "v1"))
	// Same pair, same key.
	assert.Equal(t, ComputeKey("g1", "v1"), ComputeKey("g1", "v1"))
	// Different channels of one guild yield distinct sessions.
	assert.NotEqual(t, ComputeKey("g1", "v1"), ComputeKey("g1", "v2"))
	assert.NotEqual(t, ComputeKey("g1", "v1"), ComputeKey("g2", "v1"))
}

func newTestStore(t *testing.T, ctx context.Context) (*Store, *redistest.Server) {
	rd := redistest.NewRedis(ctx, t)
	return &Store{
		Redis: rd.Client,
		Keys:  KeysForPrefix(DefaultKeyPrefix),
		TTL:   DefaultTTL,
	}, rd
}

func TestBinding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, rd := newTestStore(t, ctx)
	defer rd.Close(t)

	workerID, err := store.GetBinding(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Empty(t, workerID)

	ok, err := store.TrySetBinding(ctx, "g1/v1", "w1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second bind attempt loses.
	ok, err = store.TrySetBinding(ctx, "g1/v1", "w2")
	require.NoError(t, err)
	assert.False(t, ok)

	workerID, err = store.GetBinding(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Equal(t, "w1", workerID)

	exists, err := store.BindingExists(ctx, "g1/v1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMetadataRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, rd := newTestStore(t, ctx)
	defer rd.Close(t)

	meta, err := store.GetMetadata(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Nil(t, meta)

	lastActive := time.Now().Truncate(time.Millisecond)
	require.NoError(t, store.SetMetadata(ctx, &Metadata{
		SessionKey:     "g1/v1",
		GuildID:        "g1",
		VoiceChannelID: "v1",
		WorkerID:       "w1",
		TextChannelID:  "t1",
		Locale:         "en-US",
		LastActive:     lastActive,
	}))
	meta, err = store.GetMetadata(ctx, "g1/v1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "g1", meta.GuildID)
	assert.Equal(t, "w1", meta.WorkerID)
	assert.Equal(t, "t1", meta.TextChannelID)
	assert.Equal(t, "en-US", meta.Locale)
	assert.True(t, meta.LastActive.Equal(lastActive))
}

func TestQueueFIFO(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, rd := newTestStore(t, ctx)
	defer rd.Close(t)

	length, err := store.AppendEntry(ctx, "g1/v1", &Entry{ID: "e1", Query: "first"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, length)
	length, err = store.AppendEntry(ctx, "g1/v1", &Entry{ID: "e2", Query: "second"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, length)

	entries, err := store.Entries(ctx, "g1/v1", 0, -1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Query)
	assert.Equal(t, "second", entries[1].Query)

	head, err := store.ShiftEntry(ctx, "g1/v1")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "e1", head.ID)

	head, err = store.ShiftEntry(ctx, "g1/v1")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "e2", head.ID)

	head, err = store.ShiftEntry(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestCurrentEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, rd := newTestStore(t, ctx)
	defer rd.Close(t)

	entry, err := store.CurrentEntry(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, store.SetCurrentEntry(ctx, "g1/v1", &Entry{ID: "e1", Query: "song"}))
	entry, err = store.CurrentEntry(ctx, "g1/v1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "e1", entry.ID)

	require.NoError(t, store.ClearCurrentEntry(ctx, "g1/v1"))
	entry, err = store.CurrentEntry(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReleaseClearsEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, rd := newTestStore(t, ctx)
	defer rd.Close(t)

	ok, err := store.TrySetBinding(ctx, "g1/v1", "w1")
	require.NoError(t, err)
	require.True(t, ok)
	meta := &Metadata{
		SessionKey:     "g1/v1",
		GuildID:        "g1",
		VoiceChannelID: "v1",
		WorkerID:       "w1",
		TextChannelID:  "t1",
		LastActive:     time.Now(),
	}
	require.NoError(t, store.SetMetadata(ctx, meta))
	_, err = store.AppendEntry(ctx, "g1/v1", &Entry{ID: "e1", Query: "song"})
	require.NoError(t, err)
	require.NoError(t, store.SetCurrentEntry(ctx, "g1/v1", &Entry{ID: "e1"}))
	require.NoError(t, store.AddGuildSession(ctx, "g1", "g1/v1"))
	require.NoError(t, store.AddWorkerSession(ctx, "w1", "g1/v1"))

	require.NoError(t, store.Release(ctx, "g1/v1", meta))

	exists, err := store.BindingExists(ctx, "g1/v1")
	require.NoError(t, err)
	assert.False(t, exists)
	gotMeta, err := store.GetMetadata(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Nil(t, gotMeta)
	length, err := store.QueueLen(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Zero(t, length)
	entry, err := store.CurrentEntry(ctx, "g1/v1")
	require.NoError(t, err)
	assert.Nil(t, entry)
	count, err := store.GuildSessionCount(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, count)
	bound, err := store.WorkerSessions(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, bound)

	// Releasing again is a harmless no-op.
	require.NoError(t, store.Release(ctx, "g1/v1", meta))
}

func TestTouchKeepsResourcesAlive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, rd := newTestStore(t, ctx)
	defer rd.Close(t)

	ok, err := store.TrySetBinding(ctx, "g1/v1", "w1")
	require.NoError(t, err)
	require.True(t, ok)
	before := time.Now()
	require.NoError(t, store.Touch(ctx, "g1/v1"))
	meta, err := store.GetMetadata(ctx, "g1/v1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, meta.LastActive.Before(before.Truncate(time.Second)))
	ttl, err := store.Redis.TTL(ctx, store.Keys.Binding("g1/v1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 0.0)
}
