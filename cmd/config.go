package main

import (
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.anankor.net/dispatch/pkg/scheduler"
	"go.anankor.net/dispatch/pkg/session"
	"go.anankor.net/dispatch/pkg/stream"
	"go.anankor.net/dispatch/pkg/worker"
	"go.anankor.net/dispatch/pkg/workerpool"
	"go.uber.org/zap"
)

// Config keys.
const (
	ConfRedisNetwork = "redis.network"
	ConfRedisAddr    = "redis.addr"
	ConfRedisDB      = "redis.db"

	ConfDispatchPrefix      = "dispatch.prefix"
	ConfDispatchStream      = "dispatch.stream"
	ConfDispatchGroup       = "dispatch.group"
	ConfDispatchSessionTTL  = "dispatch.session_ttl"
	ConfDispatchGuildCap    = "dispatch.guild_cap"
	ConfDispatchReadBatch   = "dispatch.read_batch"
	ConfDispatchReadBlock   = "dispatch.read_block"
	ConfDispatchDedupSize   = "dispatch.dedup_size"
	ConfDispatchPresenceTTL = "dispatch.presence_ttl"
	ConfDispatchHeartbeat   = "dispatch.heartbeat_interval"
	ConfDispatchClaimTTL    = "dispatch.claim_ttl"

	ConfWorkerCredentials = "worker.credentials"

	ConfJanitorInterval = "janitor.interval"
)

func init() {
	viper.SetDefault(ConfRedisNetwork, "tcp")
	viper.SetDefault(ConfRedisAddr, "localhost:6379")
	viper.SetDefault(ConfRedisDB, 0)

	viper.SetDefault(ConfDispatchPrefix, session.DefaultKeyPrefix)
	viper.SetDefault(ConfDispatchStream, stream.DefaultStream)
	viper.SetDefault(ConfDispatchGroup, stream.DefaultGroup)
	viper.SetDefault(ConfDispatchSessionTTL, session.DefaultTTL)
	viper.SetDefault(ConfDispatchGuildCap, scheduler.DefaultGuildCap)
	viper.SetDefault(ConfDispatchReadBatch, worker.DefaultOptions.BatchSize)
	viper.SetDefault(ConfDispatchReadBlock, worker.DefaultOptions.Block)
	viper.SetDefault(ConfDispatchDedupSize, worker.DefaultOptions.DedupSize)
	viper.SetDefault(ConfDispatchPresenceTTL, workerpool.DefaultPresenceTTL)
	viper.SetDefault(ConfDispatchHeartbeat, workerpool.DefaultHeartbeatInterval)
	viper.SetDefault(ConfDispatchClaimTTL, workerpool.DefaultClaimTTL)

	viper.SetDefault(ConfWorkerCredentials, []string{})

	viper.SetDefault(ConfJanitorInterval, 30*time.Second)
}

func redisClientFromEnv() *redis.Client {
	redisOpts := &redis.Options{
		Network: viper.GetString(ConfRedisNetwork),
		Addr:    viper.GetString(ConfRedisAddr),
		DB:      viper.GetInt(ConfRedisDB),
	}
	log.Info("Connecting to Redis",
		zap.String(ConfRedisNetwork, redisOpts.Network),
		zap.String(ConfRedisAddr, redisOpts.Addr),
		zap.Int(ConfRedisDB, redisOpts.DB))
	return redis.NewClient(redisOpts)
}

func sessionStoreFromEnv(rd *redis.Client) *session.Store {
	return &session.Store{
		Redis: rd,
		Keys:  session.KeysForPrefix(viper.GetString(ConfDispatchPrefix)),
		TTL:   viper.GetDuration(ConfDispatchSessionTTL),
	}
}

func registryFromEnv(rd *redis.Client) *workerpool.Registry {
	return &workerpool.Registry{
		Redis:       rd,
		Keys:        workerpool.KeysForPrefix(viper.GetString(ConfDispatchPrefix)),
		PresenceTTL: viper.GetDuration(ConfDispatchPresenceTTL),
	}
}

func consumerOptionsFromEnv() worker.Options {
	return worker.Options{
		JobStream: viper.GetString(ConfDispatchStream),
		Group:     viper.GetString(ConfDispatchGroup),
		BatchSize: viper.GetInt64(ConfDispatchReadBatch),
		Block:     viper.GetDuration(ConfDispatchReadBlock),
		DedupSize: viper.GetInt(ConfDispatchDedupSize),
	}
}
