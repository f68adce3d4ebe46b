package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"relaysync/internal/daemon"
	"relaysync/internal/db"
	"relaysync/internal/logger"
	"relaysync/internal/repository"
	"relaysync/internal/seed"
)

var watchSeed []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the configured directories and relay every change",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	if err := cfg.ValidateClient(); err != nil {
		return err
	}

	rules := cfg.ActiveWatches()
	if len(rules) == 0 {
		return errors.New("no active watches configured")
	}

	var repo *repository.HistoryRepository
	if db.Enabled() {
		repo = repository.NewHistoryRepository()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := daemon.NewJobManager(cfg, repo)

	started := 0
	for _, rule := range rules {
		if err := manager.StartJob(ctx, rule); err != nil {
			logger.Log.Warn("failed to start watch",
				zap.String("root", rule.LocalPath),
				zap.Error(err))
			continue
		}
		started++
	}

	if started == 0 {
		return errors.New("no watch could be started")
	}

	srv := daemon.NewServer(manager, repo, cfg.DaemonPort)
	srv.Start()

	logger.Log.Info("relaysync watcher started",
		zap.Int("watches", started),
		zap.String("remote", cfg.Client.RemoteHost),
		zap.Int("port", cfg.DaemonPort))

	if len(watchSeed) > 0 {
		go func() {
			if err := manager.Seed(ctx, watchSeed); err != nil && !seed.IsCanceled(err) {
				logger.Log.Error("seed failed", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchSeed, "seed", nil, "directories to relay in full once the watchers are up")
	rootCmd.AddCommand(watchCmd)
}
