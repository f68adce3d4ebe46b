package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relaysync/internal/db"
	"relaysync/internal/logger"
	"relaysync/internal/matcher"
	"relaysync/internal/model"
	"relaysync/internal/relay"
	"relaysync/internal/repository"
	"relaysync/internal/seed"
)

var seedNoProgress bool

var seedCmd = &cobra.Command{
	Use:   "seed <dir>...",
	Short: "Relay the current contents of directories under configured watches",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSeed,
}

type seedTask struct {
	dir    string
	seeder *seed.Seeder
	total  int
}

func runSeed(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	if err := cfg.ValidateClient(); err != nil {
		return err
	}

	var repo *repository.HistoryRepository
	if db.Enabled() {
		repo = repository.NewHistoryRepository()
	}

	var progress *mpb.Progress
	if !seedNoProgress {
		progress = mpb.New(mpb.WithWidth(64))
	}

	tasks := make([]seedTask, 0, len(args))
	for _, arg := range args {
		dir, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid seed dir: %w", err)
		}

		s, err := newSeeder(dir)
		if err != nil {
			return err
		}

		total, err := s.Count(dir)
		if err != nil {
			return err
		}

		tasks = append(tasks, seedTask{dir: dir, seeder: s, total: total})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		mu      sync.Mutex
		summary seed.Report
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		var bar *mpb.Bar
		if progress != nil {
			bar = progress.AddBar(int64(t.total),
				mpb.PrependDecorators(
					decor.Name(t.dir, decor.WC{W: len(t.dir) + 1}),
					decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
				),
				mpb.AppendDecorators(
					decor.OnComplete(
						decor.Percentage(decor.WCSyncSpace), "done",
					),
				),
			)
		}

		t.seeder.OnProgress(func(result model.SyncResult) {
			if bar != nil {
				bar.Increment()
			}
			if repo != nil && !result.Skipped {
				if err := repo.Save(result); err != nil {
					logger.Log.Warn("failed to save history", zap.Error(err))
				}
			}
		})

		g.Go(func() error {
			report, err := t.seeder.Seed(gCtx, t.dir)
			if bar != nil {
				// Entries that vanished between count and walk.
				bar.SetTotal(bar.Current(), true)
			}

			mu.Lock()
			summary.Relayed += report.Relayed
			summary.Failed += report.Failed
			summary.Skipped += report.Skipped
			mu.Unlock()

			return err
		})
	}

	err := g.Wait()
	if progress != nil {
		progress.Wait()
	}

	fmt.Printf("relayed %d, failed %d, skipped %d\n", summary.Relayed, summary.Failed, summary.Skipped)

	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d entries could not be relayed", summary.Failed)
	}

	return nil
}

func newSeeder(dir string) (*seed.Seeder, error) {
	rule, ok := cfg.WatchFor(dir)
	if !ok {
		return nil, fmt.Errorf("%s is not under any watch root", dir)
	}

	tr, err := relay.NewTranslator(rule)
	if err != nil {
		return nil, err
	}

	mt, err := matcher.New(rule)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", rule.LocalPath, err)
	}

	client, err := relay.NewClient(cfg.Client, mt)
	if err != nil {
		return nil, err
	}

	return seed.New(tr, mt, client), nil
}

func init() {
	seedCmd.Flags().BoolVar(&seedNoProgress, "no-progress", false, "disable progress bars")
	rootCmd.AddCommand(seedCmd)
}
