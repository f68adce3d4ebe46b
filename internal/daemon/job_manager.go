package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relaysync/internal/config"
	"relaysync/internal/logger"
	"relaysync/internal/matcher"
	"relaysync/internal/model"
	"relaysync/internal/pipeline"
	"relaysync/internal/relay"
	"relaysync/internal/repository"
	"relaysync/internal/seed"
	"relaysync/internal/syncer"
	"relaysync/internal/syncer/local"
)

// job is everything one watch rule runs on.
type job struct {
	rule    config.WatchRule
	state   *JobState
	syncer  *syncer.RelaySyncer
	seeder  *seed.Seeder
	filter  *pipeline.ChecksumFilter
	source  syncer.EventSource
	results <-chan model.SyncResult
}

// JobManager runs one watch job per configured rule.
type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*job
	cfg  *config.Config
	repo *repository.HistoryRepository
	wg   sync.WaitGroup

	newRelayer func(*matcher.Matcher) (relay.Relayer, error)
}

// NewJobManager builds a manager. repo may be nil when history is disabled.
func NewJobManager(cfg *config.Config, repo *repository.HistoryRepository) *JobManager {
	return &JobManager{
		jobs: make(map[string]*job),
		cfg:  cfg,
		repo: repo,
		newRelayer: func(m *matcher.Matcher) (relay.Relayer, error) {
			return relay.NewClient(cfg.Client, m)
		},
	}
}

func (m *JobManager) StartJob(ctx context.Context, rule config.WatchRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	root, err := filepath.Abs(rule.LocalPath)
	if err != nil {
		return fmt.Errorf("invalid local path: %w", err)
	}

	if _, exists := m.jobs[root]; exists {
		return fmt.Errorf("job for %s already running", root)
	}

	j, err := m.newJob(rule)
	if err != nil {
		return err
	}

	if err := j.source.Start(); err != nil {
		j.source.Stop()
		return fmt.Errorf("failed to start source: %w", err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j.state = NewJobState(root, rule.RemotePath, cancel)

	events := j.source.Events()
	if j.filter != nil {
		events = j.filter.Run(events)
	}
	j.results = j.syncer.Run(jobCtx, events)

	m.jobs[root] = j
	m.wg.Go(func() {
		m.runPipeline(jobCtx, j)
	})

	logger.Log.Info("job started",
		zap.String("root", root),
		zap.String("remote", rule.RemotePath),
		zap.Bool("skip_unchanged", j.filter != nil))

	return nil
}

func (m *JobManager) newJob(rule config.WatchRule) (*job, error) {
	tr, err := relay.NewTranslator(rule)
	if err != nil {
		return nil, err
	}

	mt, err := matcher.New(rule)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", rule.LocalPath, err)
	}

	relayer, err := m.newRelayer(mt)
	if err != nil {
		return nil, err
	}

	src, err := local.NewSource(tr.Root(), m.cfg.BufferSize)
	if err != nil {
		return nil, err
	}

	j := &job{
		rule:   rule,
		syncer: syncer.NewRelaySyncer(tr, mt, relayer),
		source: src,
	}
	j.seeder = seed.New(tr, mt, relayer).OnProgress(func(result model.SyncResult) {
		m.record(j, result)
	})

	if rule.SkipUnchanged {
		if j.filter, err = pipeline.NewChecksumFilter(m.cfg.CacheSize); err != nil {
			return nil, err
		}
	}

	return j, nil
}

func (m *JobManager) runPipeline(ctx context.Context, j *job) {
	defer func() {
		j.source.Stop()

		// Relays in flight observe the canceled context and finish quickly.
		for result := range j.results {
			m.record(j, result)
		}

		j.state.SetStatus(model.JobStatusStopped)

		m.mu.Lock()
		delete(m.jobs, j.state.Root)
		m.mu.Unlock()

		logger.Log.Info("job stopped",
			zap.String("root", j.state.Root))
	}()

	for {
		select {
		case result, ok := <-j.results:
			if !ok {
				return
			}
			m.record(j, result)

		case <-ctx.Done():
			return
		}
	}
}

func (m *JobManager) record(j *job, result model.SyncResult) {
	j.state.RecordSync(result)

	if result.Skipped {
		return
	}

	if result.Err != nil && j.filter != nil {
		j.filter.Forget(result.Event.Path)
	}

	if m.repo != nil {
		if err := m.repo.Save(result); err != nil {
			logger.Log.Warn("failed to save history",
				zap.Error(err))
		}
	}
}

// Seed relays the current contents of dirs, each of which must lie under a
// running job's root. Dirs are seeded concurrently.
func (m *JobManager) Seed(ctx context.Context, dirs []string) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("invalid seed dir: %w", err)
		}

		j := m.jobFor(abs)
		if j == nil {
			return fmt.Errorf("%s is not under any watch root", abs)
		}

		g.Go(func() error {
			j.state.SetStatus(model.JobStatusSeeding)
			defer j.state.SetStatus(model.JobStatusActive)

			_, err := j.seeder.Seed(gCtx, abs)
			return err
		})
	}

	return g.Wait()
}

// jobFor returns the job with the longest root containing dir.
func (m *JobManager) jobFor(dir string) *job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *job
	for root, j := range m.jobs {
		if dir != root && !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(root) > len(best.state.Root) {
			best = j
		}
	}

	return best
}

func (m *JobManager) StopJob(root string) error {
	m.mu.RLock()
	j, exists := m.jobs[root]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", root)
	}

	j.state.cancel()
	return nil
}

// StopAll stops every job and waits for their pipelines to drain.
func (m *JobManager) StopAll() {
	m.mu.RLock()
	roots := make([]string, 0, len(m.jobs))
	for root := range m.jobs {
		roots = append(roots, root)
	}
	m.mu.RUnlock()

	for _, root := range roots {
		_ = m.StopJob(root)
	}

	m.wg.Wait()
}

func (m *JobManager) Snapshots() []model.JobSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]model.JobSnapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		snaps = append(snaps, j.state.Snapshot())
	}

	slices.SortFunc(snaps, func(a, b model.JobSnapshot) int {
		return strings.Compare(a.Root, b.Root)
	})

	return snaps
}
