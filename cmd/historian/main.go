// cmd/historian/main.go is the historian service. It pops room actions from
// the Redis action queue and persists them to PostgreSQL in batches.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/threes/internal/cache"
	"github.com/jason-s-yu/threes/internal/config"
	"github.com/jason-s-yu/threes/internal/database"
	"github.com/jason-s-yu/threes/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	cfg := config.Default()
	var (
		batchSize  int
		flushDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "threes-historian",
		Short: "Persists the room action log from Redis into PostgreSQL.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
				return errors.New("both --database-url and --redis-addr are required")
			}
			return run(cmd.Context(), cfg, historian.Options{
				BatchSize:     batchSize,
				FlushInterval: flushDelay,
			})
		},
	}
	config.Bind(cmd, cfg)
	fs := cmd.PersistentFlags()
	fs.IntVar(&batchSize, "batch-size", historian.DefaultBatchSize, "actions per database write (env: THREES_BATCH_SIZE)")
	fs.DurationVar(&flushDelay, "flush-interval", historian.DefaultFlushInterval, "longest time an action waits before it is written (env: THREES_FLUSH_INTERVAL)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts historian.Options) error {
	logger := config.NewLogger(cfg)
	opts.Logger = logger

	if _, err := database.MigrateUp(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	queue := cache.NewActionQueue(rdb, cfg.ActionQueue)
	svc := historian.New(queue, database.NewStore(pool), opts)

	logger.WithField("queue", queue.Name()).Info("threes-historian service started")
	svc.Run(ctx)
	logger.Info("threes-historian shutting down")
	return nil
}
