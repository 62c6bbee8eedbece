package main

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.anankor.net/dispatch/pkg/job"
	"go.anankor.net/dispatch/pkg/player"
	"go.anankor.net/dispatch/pkg/session"
	"go.anankor.net/dispatch/pkg/stream"
	"go.anankor.net/dispatch/pkg/worker"
	"go.anankor.net/dispatch/pkg/workerpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var workerCmd = cobra.Command{
	Use:   "worker",
	Short: "Run one worker process",
	Long: "Claims a free credential, joins the worker pool and consumes jobs\n" +
		"from the shared and private streams until interrupted.",
	Args: cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		app := fx.New(
			fx.Provide(providers...),
			fx.Invoke(newWorker),
			fx.Logger(zap.NewStdLog(log)),
		)
		app.Run()
	},
}

func init() {
	rootCmd.AddCommand(&workerCmd)
}

func newWorker(
	lc fx.Lifecycle,
	shutdown fx.Shutdowner,
	rd *redis.Client,
	sessions *session.Store,
	pool *workerpool.Registry,
	streams *stream.Client,
) error {
	credentials := viper.GetStringSlice(ConfWorkerCredentials)
	if len(credentials) == 0 {
		log.Fatal("Empty " + ConfWorkerCredentials)
	}
	claimer := workerpool.Claimer{
		Redis: rd,
		Log:   log.Named("claimer"),
		Keys:  pool.Keys,
		TTL:   viper.GetDuration(ConfDispatchClaimTTL),
	}
	claimCtx, cancelClaim := context.WithCancel(context.Background())
	claim, err := claimer.Claim(claimCtx, credentials)
	if err != nil {
		cancelClaim()
		return err
	}
	log.Info("Claimed worker identity", zap.String("worker", claim.WorkerID))
	if err := pool.Register(claimCtx, claim.WorkerID); err != nil {
		cancelClaim()
		return err
	}
	heartbeat := workerpool.PresenceHeartbeat{
		Registry: pool,
		Log:      log.Named("heartbeat"),
		WorkerID: claim.WorkerID,
		Interval: viper.GetDuration(ConfDispatchHeartbeat),
	}
	consumer, err := worker.NewConsumer(streams, log.Named("consumer"),
		claim.WorkerID, consumerOptionsFromEnv())
	if err != nil {
		cancelClaim()
		return err
	}
	music := worker.MusicHandler{
		Player:   &player.LogPlayer{Log: log.Named("player")},
		Sessions: sessions,
		Log:      log.Named("music"),
	}
	music.RegisterAll(consumer)
	consumer.Register(job.TypePingRespond,
		worker.HandlerFunc(func(_ context.Context, jb job.Job) error {
			log.Info("Pong", zap.String("job_id", jb.Env().ID))
			return nil
		}))
	innerCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := heartbeat.Run(innerCtx); err != nil && innerCtx.Err() == nil {
					log.Error("Presence heartbeat failed", zap.Error(err))
				}
			}()
			go func() {
				log.Info("Starting consumer", zap.String("worker", claim.WorkerID))
				if err := consumer.Run(innerCtx); err != nil && innerCtx.Err() == nil {
					log.Error("Consumer failed", zap.Error(err))
				}
				if err := shutdown.Shutdown(); err != nil {
					log.Fatal("Failed to shut down", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if err := pool.Unregister(ctx, claim.WorkerID); err != nil {
				log.Error("Failed to leave worker pool", zap.Error(err))
			}
			if err := claim.Release(ctx); err != nil {
				log.Error("Failed to release credential claim", zap.Error(err))
			}
			cancelClaim()
			return nil
		},
	})
	return nil
}
