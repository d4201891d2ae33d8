// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/threes/internal/cache"
	"github.com/jason-s-yu/threes/internal/config"
	"github.com/jason-s-yu/threes/internal/database"
	"github.com/jason-s-yu/threes/internal/handlers"
	"github.com/jason-s-yu/threes/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

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

	cmd := &cobra.Command{
		Use:   "threes-server",
		Short: "Room coordinator and websocket gateway for the threes dice game.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	config.Bind(cmd, cfg)
	cmd.AddCommand(newMigrateCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the history schema.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" {
				return errors.New("--database-url is required to migrate")
			}
			logger := config.NewLogger(cfg)
			if len(args) == 1 && args[0] == "down" {
				if err := database.MigrateDown(cfg.DatabaseURL); err != nil {
					return err
				}
				logger.Info("schema rolled back")
				return nil
			}
			version, err := database.MigrateUp(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			logger.WithField("version", version).Info("schema is up to date")
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := config.NewLogger(cfg)

	hub := handlers.NewHub(logger)
	opts := room.Options{
		Notifier:      hub,
		Logger:        logger,
		TurnDelay:     cfg.TurnDelay,
		IdleTimeout:   cfg.IdleTimeout,
		SweepInterval: cfg.SweepInterval,
	}

	var history handlers.HistoryReader
	if cfg.DatabaseURL != "" {
		if _, err := database.MigrateUp(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := database.NewStore(pool)
		opts.History = store
		opts.Players = store
		history = store
		logger.Info("game history enabled")
	} else {
		logger.Warn("no database configured, finished games will not be recorded")
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Actions = cache.NewActionQueue(rdb, cfg.ActionQueue)
		logger.WithField("queue", cfg.ActionQueue).Info("room action log enabled")
	}

	coord := room.NewCoordinator(opts)
	srv := handlers.NewRoomServer(coord, hub, history, handlers.ServerOptions{
		PingInterval:      cfg.PingInterval,
		MessagesPerSecond: cfg.MessagesPerSecond,
		MessageBurst:      cfg.MessageBurst,
		PublicURL:         cfg.PublicURL,
	}, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go coord.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	stopSweep()
	return shutdown(httpSrv, srv, coord, logger)
}

func shutdown(httpSrv *http.Server, srv *handlers.RoomServer, coord *room.Coordinator, logger logrus.FieldLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpSrv.Shutdown(ctx)
	if n := srv.CloseAll(); n > 0 {
		logger.WithField("connections", n).Info("closing websocket connections")
	}
	// handlers leave their rooms on the way out, so they must finish before
	// the coordinator waits on background writes
	if werr := srv.Wait(ctx); werr != nil {
		logger.WithError(werr).Warn("timed out waiting for websocket handlers")
	}

	done := make(chan struct{})
	go func() {
		coord.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("timed out waiting for background writes")
	}
	return err
}
