package main

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.anankor.net/dispatch/pkg/scheduler"
	"go.anankor.net/dispatch/pkg/session"
	"go.anankor.net/dispatch/pkg/stream"
	"go.anankor.net/dispatch/pkg/workerpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var providers = []interface{}{
	newRedis,
	newSessionStore,
	newRegistry,
	newStreamClient,
	newScheduler,
}

func newRedis(ctx context.Context, lc fx.Lifecycle) (*redis.Client, error) {
	rd := redisClientFromEnv()
	if err := rd.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("Closing Redis client")
			err := rd.Close()
			if err != nil {
				log.Error("Failed to close Redis client", zap.Error(err))
			}
			return err
		},
	})
	return rd, nil
}

func newSessionStore(rd *redis.Client) *session.Store {
	return sessionStoreFromEnv(rd)
}

func newRegistry(rd *redis.Client) *workerpool.Registry {
	return registryFromEnv(rd)
}

func newStreamClient(rd *redis.Client) *stream.Client {
	return &stream.Client{Redis: rd}
}

func newScheduler(
	sessions *session.Store,
	pool *workerpool.Registry,
	streams *stream.Client,
) *scheduler.Scheduler {
	return &scheduler.Scheduler{
		Sessions:  sessions,
		Pool:      pool,
		Streams:   streams,
		Log:       log.Named("scheduler"),
		GuildCap:  viper.GetInt(ConfDispatchGuildCap),
		Group:     viper.GetString(ConfDispatchGroup),
		JobStream: viper.GetString(ConfDispatchStream),
	}
}
