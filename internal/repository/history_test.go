package repository

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaysync/internal/db"
	"relaysync/internal/model"
)

func initDB(t *testing.T) {
	t.Helper()

	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "history.db")))
	t.Cleanup(func() {
		if sqlDB, err := db.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		db.DB = nil
	})
}

func result(path string, err error, at time.Time) model.SyncResult {
	return model.SyncResult{
		Root:      "/data/proj",
		Event:     model.FileEvent{Kind: model.EventModified, Path: path},
		Action:    model.RemoteAction{Kind: model.EventModified, Dir: "/srv/proj", FileName: filepath.Base(path)},
		RequestID: "req-" + filepath.Base(path),
		Attempts:  1,
		Err:       err,
		SyncedAt:  at,
	}
}

func TestHistoryRepository(t *testing.T) {
	initDB(t)
	repo := NewHistoryRepository()

	now := time.Now()
	require.NoError(t, repo.Save(result("/data/proj/a.txt", nil, now.Add(-2*time.Minute))))
	require.NoError(t, repo.Save(result("/data/proj/b.txt", errors.New("receiver down"), now.Add(-time.Minute))))
	require.NoError(t, repo.Save(result("/data/proj/c.txt", nil, now)))

	recent, err := repo.GetRecent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/data/proj/c.txt", recent[0].SrcPath)
	assert.Equal(t, "/srv/proj/c.txt", recent[0].RemotePath)
	assert.Equal(t, "req-c.txt", recent[0].RequestID)
	assert.Equal(t, model.StatusSuccess, recent[0].Status)

	failed, err := repo.GetFailed(10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "receiver down", failed[0].ErrMsg)

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Success: 2, Failed: 1}, stats)
}
