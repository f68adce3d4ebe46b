package daemon

import (
	"context"
	"sync"
	"time"

	"relaysync/internal/model"
)

type JobState struct {
	mu        sync.RWMutex
	Root      string
	Remote    string
	Status    model.JobStatus
	StartedAt time.Time
	Synced    int
	Failed    int
	Skipped   int
	LastSync  *time.Time
	cancel    context.CancelFunc
}

func NewJobState(root, remote string, cancel context.CancelFunc) *JobState {
	return &JobState{
		Root:      root,
		Remote:    remote,
		Status:    model.JobStatusActive,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
}

func (s *JobState) RecordSync(result model.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case result.Skipped:
		s.Skipped++
		return
	case result.Err != nil:
		s.Failed++
	default:
		s.Synced++
	}

	s.LastSync = new(time.Now())
}

func (s *JobState) SetStatus(status model.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

func (s *JobState) Snapshot() model.JobSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.JobSnapshot{
		Root:      s.Root,
		Remote:    s.Remote,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		Synced:    s.Synced,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		LastSync:  s.LastSync,
	}
}
