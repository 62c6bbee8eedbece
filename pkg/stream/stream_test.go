package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.anankor.net/dispatch/pkg/redistest"
)

func TestWorkerStream(t *testing.T) {
	assert.Equal(t, "anankor:jobs:worker:worker-1",
		WorkerStream("anankor:jobs", "worker-1"))
}

func TestPublishReadAck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	client := Client{Redis: rd.Client}

	require.NoError(t, client.EnsureGroup(ctx, "g", "s"))
	// Re-creating the group is a no-op, not an error.
	require.NoError(t, client.EnsureGroup(ctx, "g", "s"))

	id, err := client.Publish(ctx, "s", []byte("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := client.Read(ctx, "g", "c1", []string{"s"}, 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s", entries[0].Stream)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, []byte("hello"), entries[0].Payload)

	require.NoError(t, client.Ack(ctx, "s", "g", entries[0].ID))

	// Nothing new to deliver after the ack.
	entries, err = client.Read(ctx, "g", "c1", []string{"s"}, 10, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadUnionOfStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	client := Client{Redis: rd.Client}

	streams := []string{"jobs", WorkerStream("jobs", "w1")}
	for _, s := range streams {
		require.NoError(t, client.EnsureGroup(ctx, "g", s))
	}
	_, err := client.Publish(ctx, streams[0], []byte("a"))
	require.NoError(t, err)
	_, err = client.Publish(ctx, streams[1], []byte("b"))
	require.NoError(t, err)

	entries, err := client.Read(ctx, "g", "w1", streams, 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	seen := map[string]string{}
	for _, e := range entries {
		seen[e.Stream] = string(e.Payload)
	}
	assert.Equal(t, "a", seen[streams[0]])
	assert.Equal(t, "b", seen[streams[1]])
}

func TestReadEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rd := redistest.NewRedis(ctx, t)
	defer rd.Close(t)
	client := Client{Redis: rd.Client}

	require.NoError(t, client.EnsureGroup(ctx, "g", "s"))
	entries, err := client.Read(ctx, "g", "c1", []string{"s"}, 10, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
