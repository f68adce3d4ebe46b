// Package seed pushes an existing tree to the receiver, for roots whose
// receiver side starts out empty or stale.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/matcher"
	"relaysync/internal/model"
	"relaysync/internal/relay"
)

type Report struct {
	Relayed int
	Failed  int
	Skipped int
}

func (r Report) Total() int {
	return r.Relayed + r.Failed + r.Skipped
}

// Seeder relays a modified action for every directory and file under a watch
// root that the matcher lets through.
type Seeder struct {
	translator *relay.Translator
	matcher    *matcher.Matcher
	relayer    relay.Relayer
	progress   func(model.SyncResult)
}

func New(t *relay.Translator, m *matcher.Matcher, r relay.Relayer) *Seeder {
	return &Seeder{
		translator: t,
		matcher:    m,
		relayer:    r,
	}
}

// OnProgress registers fn to be called after every relayed entry.
func (s *Seeder) OnProgress(fn func(model.SyncResult)) *Seeder {
	s.progress = fn
	return s
}

// Count returns how many entries Seed would relay for dir.
func (s *Seeder) Count(dir string) (int, error) {
	n := 0
	err := s.walk(context.Background(), dir, func(string, bool) {
		n++
	}, nil)

	return n, err
}

func (s *Seeder) Seed(ctx context.Context, dir string) (Report, error) {
	var report Report
	started := time.Now()

	err := s.walk(ctx, dir, func(path string, isDir bool) {
		result := s.relay(ctx, path, isDir)

		switch {
		case result.Skipped:
			report.Skipped++
		case result.Err != nil:
			report.Failed++
		default:
			report.Relayed++
		}

		if s.progress != nil {
			s.progress(result)
		}
	}, func(string) {
		report.Skipped++
	})

	logger.Log.Info("seed finished",
		zap.String("dir", dir),
		zap.Int("relayed", report.Relayed),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", time.Since(started)))

	return report, err
}

func (s *Seeder) relay(ctx context.Context, path string, isDir bool) model.SyncResult {
	event := model.FileEvent{
		Kind:      model.EventModified,
		Path:      path,
		IsDir:     isDir,
		Timestamp: time.Now(),
	}

	action, err := s.translator.Translate(event)
	if err != nil {
		logger.Log.Warn("failed to translate seed entry",
			zap.String("path", path),
			zap.Error(err))

		return model.SyncResult{Root: s.translator.Root(), Event: event, Err: err, SyncedAt: time.Now()}
	}

	result := s.relayer.Relay(ctx, action)
	result.Root = s.translator.Root()
	result.Event = event
	return result
}

// walk calls visit depth-first for every entry under dir that is in scope and
// skip, when set, for every entry that is not. Pruned directories are not
// descended into; directories the allow-list rejects still are.
func (s *Seeder) walk(ctx context.Context, dir string, visit func(path string, isDir bool), skip func(path string)) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid seed dir: %w", err)
	}

	if _, err := s.translator.Rel(root); err != nil {
		return err
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return fmt.Errorf("failed to read seed dir: %w", err)
			}

			logger.Log.Warn("skipping unreadable entry",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}

		rel, err := s.translator.Rel(path)
		if err != nil {
			return err
		}

		if d.IsDir() && s.matcher.ShouldPrune(rel) {
			if skip != nil {
				skip(path)
			}
			return fs.SkipDir
		}

		if s.matcher.ShouldSkip(rel) {
			if skip != nil {
				skip(path)
			}
			return nil
		}

		visit(path, d.IsDir())
		return nil
	})
}

// IsCanceled reports whether err only means the seed was interrupted.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
