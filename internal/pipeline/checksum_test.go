package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaysync/internal/model"
)

func TestChecksumFilterSkipsUnchanged(t *testing.T) {
	cf, err := NewChecksumFilter(16)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0644))
	modified := model.FileEvent{Kind: model.EventModified, Path: file}

	assert.True(t, cf.Changed(modified))
	assert.False(t, cf.Changed(modified))

	require.NoError(t, os.Chmod(file, 0600))
	assert.True(t, cf.Changed(modified))

	require.NoError(t, os.WriteFile(file, []byte("two"), 0600))
	assert.True(t, cf.Changed(modified))
	assert.False(t, cf.Changed(modified))

	cf.Forget(file)
	assert.True(t, cf.Changed(modified))
}

func TestChecksumFilterTracksMovesAndDeletes(t *testing.T) {
	cf, err := NewChecksumFilter(16)
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	require.True(t, cf.Changed(model.FileEvent{Kind: model.EventCreated, Path: src}))

	require.NoError(t, os.Rename(src, dst))
	assert.True(t, cf.Changed(model.FileEvent{Kind: model.EventMoved, Path: src, DestPath: dst}))
	assert.False(t, cf.Changed(model.FileEvent{Kind: model.EventModified, Path: dst}))

	assert.True(t, cf.Changed(model.FileEvent{Kind: model.EventDeleted, Path: dst}))
	assert.True(t, cf.Changed(model.FileEvent{Kind: model.EventDeleted, Path: dst}))
	assert.True(t, cf.Changed(model.FileEvent{Kind: model.EventModified, Path: filepath.Join(dir, "missing")}))
}

func TestRunFiltersStream(t *testing.T) {
	cf, err := NewChecksumFilter(16)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	inCh := make(chan model.FileEvent, 4)
	inCh <- model.FileEvent{Kind: model.EventModified, Path: file}
	inCh <- model.FileEvent{Kind: model.EventModified, Path: file}
	inCh <- model.FileEvent{Kind: model.EventModified, Path: filepath.Dir(file), IsDir: true}
	inCh <- model.FileEvent{Kind: model.EventDeleted, Path: file}
	close(inCh)

	var kinds []model.EventKind
	for ev := range cf.Run(inCh) {
		kinds = append(kinds, ev.Kind)
	}

	assert.Equal(t, []model.EventKind{model.EventModified, model.EventModified, model.EventDeleted}, kinds)
}
