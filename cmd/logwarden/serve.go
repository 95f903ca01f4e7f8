package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logwarden/internal/intel"
	"logwarden/internal/server"
	"logwarden/internal/tail"
)

func newServeCmd() *cobra.Command {
	var refreshInterval int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, optionally tailing a configured log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			var limiter *server.RateLimiter
			if a.cfg.Server.RateLimitEnabled {
				client := redis.NewClient(&redis.Options{
					Addr:     a.cfg.Redis.Addr,
					Password: a.cfg.Redis.Password,
					DB:       a.cfg.Redis.DB,
					PoolSize: a.cfg.Redis.PoolSize,
				})
				defer client.Close()
				limiter = server.NewRateLimiter(client, a.cfg.Server.RateLimitPerMin, a.logger)
			}

			srv := server.New(a.cfg.Server, a.engine, a.intel, a.firewall,
				server.NewStore(server.DefaultStoreCapacity), a.metrics, a.registry,
				limiter, a.logger, version)
			a.pipeline.SetSink(srv.Store())

			if refreshInterval > 0 {
				scheduler := intel.NewScheduler(a.intel, time.Duration(refreshInterval)*time.Hour, a.logger)
				scheduler.Start()
				defer scheduler.Stop()
			}

			if a.cfg.Tail.Path != "" {
				tailer := tail.NewTailer(a.cfg.Tail.Path, a.cfg.Tail.Interval, a.logger)
				go tailer.Run(cmd.Context())
				defer tailer.Stop()
				go func() {
					for line := range tailer.Lines() {
						a.pipeline.ProcessLine(cmd.Context(), line)
					}
				}()
				a.logger.Info("serving with live tail", zap.String("path", a.cfg.Tail.Path))
			}

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&refreshInterval, "intel-refresh-hours", 6,
		"refresh reputation feeds every N hours (0 disables)")
	return cmd
}
