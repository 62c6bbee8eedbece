package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.anankor.net/dispatch/pkg/scheduler"
	"go.anankor.net/dispatch/pkg/session"
	"go.anankor.net/dispatch/pkg/workerpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var janitorCmd = cobra.Command{
	Use:   "janitor",
	Short: "Run stale-session janitor",
	Long: "Periodically reclaims sessions bound to workers that lost presence.\n" +
		"Optional: lazy recovery plus TTLs already guarantee correctness.",
	Args: cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		app := fx.New(
			fx.Provide(providers...),
			fx.Invoke(newJanitor),
			fx.Logger(zap.NewStdLog(log)),
		)
		app.Run()
	},
}

func init() {
	rootCmd.AddCommand(&janitorCmd)
}

func newJanitor(
	lc fx.Lifecycle,
	shutdown fx.Shutdowner,
	sessions *session.Store,
	pool *workerpool.Registry,
) {
	sweeper := scheduler.Sweeper{
		Sessions: sessions,
		Pool:     pool,
		Log:      log.Named("sweeper"),
		Interval: viper.GetDuration(ConfJanitorInterval),
	}
	innerCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				log.Info("Starting janitor")
				if err := sweeper.Run(innerCtx); err != nil && innerCtx.Err() == nil {
					log.Error("Janitor failed", zap.Error(err))
				}
				if err := shutdown.Shutdown(); err != nil {
					log.Fatal("Failed to shut down", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
}
