// Package stream implements the broker log layer on Redis Streams.
//
// One global stream carries jobs without worker affinity; each worker
// additionally owns a private stream named deterministically from its id, so
// the scheduler and the worker agree on addressing without coordination.
// All readers share one consumer group with per-entry acknowledgement.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// PayloadField is the stream entry field holding the encoded job.
const PayloadField = "payload"

// DefaultStream is the global stream for jobs without worker affinity.
const DefaultStream = "anankor:jobs"

// DefaultGroup is the consumer group shared by all workers.
const DefaultGroup = "anankor-workers"

// WorkerStream derives the per-worker stream key from the global stream name.
func WorkerStream(base, workerID string) string {
	return base + ":worker:" + workerID
}

// Client provides the publish, consumer-group read and acknowledge
// primitives of the broker.
type Client struct {
	// Required components
	Redis *redis.Client
}

// Entry is one delivered stream element.
type Entry struct {
	Stream  string
	ID      string
	Payload []byte
}

// Publish appends a payload to a stream.
// The entry is durable once the returned id is known.
func (c *Client) Publish(ctx context.Context, stream string, payload []byte) (string, error) {
	id, err := c.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{PayloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group on a stream, creating the stream if
// needed. A pre-existing group is not an error; all other errors propagate.
func (c *Client) EnsureGroup(ctx context.Context, group, stream string) error {
	err := c.Redis.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// Read blocks up to block for new entries on the given streams under the
// consumer group. An empty result is not an error, just no work yet.
func (c *Client) Read(
	ctx context.Context,
	group, consumer string,
	streams []string,
	count int64, block time.Duration,
) ([]Entry, error) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}
	res, err := c.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read from group %s: %w", group, err)
	}
	var entries []Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			payload, _ := msg.Values[PayloadField].(string)
			entries = append(entries, Entry{
				Stream:  s.Stream,
				ID:      msg.ID,
				Payload: []byte(payload),
			})
		}
	}
	return entries, nil
}

// Ack acknowledges one delivered entry.
func (c *Client) Ack(ctx context.Context, stream, group, id string) error {
	if err := c.Redis.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("failed to ack %s on %s: %w", id, stream, err)
	}
	return nil
}
