// Package worker runs the consumer loop of one claimed worker identity.
//
// The loop block-reads the union of the global stream and the worker's
// private stream under the shared consumer group, dispatches each entry to a
// handler keyed by job type, and acknowledges unconditionally: a handler
// error is a permanently failed attempt, not a transient fault to retry.
// Redelivery only ever comes from a process-level crash before acknowledge.
package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru"
	"go.anankor.net/dispatch/pkg/job"
	"go.anankor.net/dispatch/pkg/stream"
	"go.uber.org/zap"
)

// Handler executes jobs of one or more types.
type Handler interface {
	HandleJob(ctx context.Context, j job.Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, j job.Job) error

// HandleJob calls the wrapped function.
func (f HandlerFunc) HandleJob(ctx context.Context, j job.Job) error {
	return f(ctx, j)
}

// Options stores consumer loop settings.
type Options struct {
	JobStream string        // global stream name
	Group     string        // shared consumer group
	BatchSize int64         // max entries per read
	Block     time.Duration // read block interval
	DedupSize int           // idempotency cache entries
}

// DefaultOptions returns the default consumer options.
// Only pass by value, not reference, to avoid modifying this globally.
var DefaultOptions = Options{
	JobStream: stream.DefaultStream,
	Group:     stream.DefaultGroup,
	BatchSize: 5,
	Block:     5 * time.Second,
	DedupSize: 4096,
}

// Consumer is the blocking read loop of one worker process.
// Entries are processed sequentially; there is no in-process concurrency
// across session handling.
type Consumer struct {
	// Required components
	Streams *stream.Client
	Log     *zap.Logger
	// Required config
	WorkerID string
	Options  Options

	handlers map[job.Type]Handler
	dedup    *lru.Cache
}

// NewConsumer builds a consumer loop for one claimed worker identity.
func NewConsumer(streams *stream.Client, log *zap.Logger, workerID string, opts Options) (*Consumer, error) {
	dedup, err := lru.New(opts.DedupSize)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		Streams:  streams,
		Log:      log,
		WorkerID: workerID,
		Options:  opts,
		handlers: make(map[job.Type]Handler),
		dedup:    dedup,
	}, nil
}

// Register installs the handler for a job type, replacing any previous one.
func (c *Consumer) Register(t job.Type, h Handler) {
	c.handlers[t] = h
}

// Run consumes until the context is canceled. Transient read errors back
// off exponentially instead of spinning against an unreachable broker.
func (c *Consumer) Run(ctx context.Context) error {
	streams := []string{
		c.Options.JobStream,
		stream.WorkerStream(c.Options.JobStream, c.WorkerID),
	}
	for _, key := range streams {
		if err := c.Streams.EnsureGroup(ctx, c.Options.Group, key); err != nil {
			return err
		}
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.step(ctx, streams); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Error("Job read failed", zap.Error(err))
			timer := time.NewTimer(bo.NextBackOff())
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		bo.Reset()
	}
}

func (c *Consumer) step(ctx context.Context, streams []string) error {
	entries, err := c.Streams.Read(ctx, c.Options.Group, c.WorkerID,
		streams, c.Options.BatchSize, c.Options.Block)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		c.process(ctx, entry)
	}
	return nil
}

// process dispatches one entry. Every path acknowledges: decode failures
// (poison-message avoidance), misrouted entries, dedup hits and handler
// errors all count as consumed.
func (c *Consumer) process(ctx context.Context, entry stream.Entry) {
	defer c.ack(ctx, entry)
	jb, err := job.Decode(entry.Payload)
	if err != nil {
		malformedEntries.Inc()
		c.Log.Error("Dropping malformed job entry",
			zap.String("worker", c.WorkerID),
			zap.String("entry_id", entry.ID),
			zap.Error(err))
		return
	}
	env := jb.Env()
	if env.TargetWorkerID != "" && env.TargetWorkerID != c.WorkerID {
		c.Log.Debug("Ignoring job targeted at another worker",
			zap.String("worker", c.WorkerID),
			zap.String("target", env.TargetWorkerID),
			zap.String("job_id", env.ID))
		return
	}
	if ok, _ := c.dedup.ContainsOrAdd(env.IdempotencyKey, struct{}{}); ok {
		dedupedJobs.Inc()
		c.Log.Info("Skipping duplicate job",
			zap.String("worker", c.WorkerID),
			zap.String("job_id", env.ID),
			zap.String("idempotency_key", env.IdempotencyKey))
		return
	}
	handler, ok := c.handlers[env.Type]
	if !ok {
		c.Log.Warn("No handler registered for job type",
			zap.String("worker", c.WorkerID),
			zap.String("job_type", string(env.Type)),
			zap.String("job_id", env.ID))
		return
	}
	if err := handler.HandleJob(ctx, jb); err != nil {
		failedJobs.WithLabelValues(string(env.Type)).Inc()
		c.Log.Error("Job handler failed",
			zap.String("worker", c.WorkerID),
			zap.String("job_type", string(env.Type)),
			zap.String("job_id", env.ID),
			zap.Error(err))
		return
	}
	processedJobs.WithLabelValues(string(env.Type)).Inc()
}

func (c *Consumer) ack(ctx context.Context, entry stream.Entry) {
	if err := c.Streams.Ack(ctx, entry.Stream, c.Options.Group, entry.ID); err != nil {
		c.Log.Error("Failed to acknowledge job entry",
			zap.String("worker", c.WorkerID),
			zap.String("entry_id", entry.ID),
			zap.Error(err))
	}
}
