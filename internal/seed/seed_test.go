package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaysync/internal/config"
	"relaysync/internal/matcher"
	"relaysync/internal/model"
	"relaysync/internal/relay"
)

type fakeRelayer struct {
	actions []model.RemoteAction
	fail    map[string]bool
}

func (f *fakeRelayer) Relay(_ context.Context, action model.RemoteAction) model.SyncResult {
	f.actions = append(f.actions, action)

	result := model.SyncResult{Action: action, Attempts: 1, Outcome: model.OK()}
	if f.fail[action.RelPath] {
		result.Err = errors.New("receiver down")
	}
	return result
}

func (f *fakeRelayer) targets() []string {
	var out []string
	for _, a := range f.actions {
		out = append(out, a.Target())
	}
	sort.Strings(out)
	return out
}

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()

	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
	}
}

func newTestSeeder(t *testing.T, rule config.WatchRule, r relay.Relayer) *Seeder {
	t.Helper()

	tr, err := relay.NewTranslator(rule)
	require.NoError(t, err)
	m, err := matcher.New(rule)
	require.NoError(t, err)

	return New(tr, m, r)
}

func TestSeedRelaysTreeInScope(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"a/b.txt",
		"a/c.png",
		"d.txt",
		".git/config.txt",
		"log/x/y.txt",
	)

	r := &fakeRelayer{}
	s := newTestSeeder(t, config.WatchRule{
		LocalPath:    root,
		RemotePath:   "/srv/proj",
		Match:        []string{`.*\.txt$`},
		Ignore:       []string{`/log(/.*)?$`},
		IgnoreHidden: true,
	}, r)

	var progressed int
	s.OnProgress(func(model.SyncResult) { progressed++ })

	report, err := s.Seed(context.Background(), root)
	require.NoError(t, err)

	// Directories outside the allow-list are walked but not relayed.
	assert.Equal(t, []string{"/srv/proj/a/b.txt", "/srv/proj/d.txt"}, r.targets())
	for _, a := range r.actions {
		assert.Equal(t, model.EventModified, a.Kind)
		assert.True(t, a.HasMode)
	}

	assert.Equal(t, 2, report.Relayed)
	assert.Equal(t, 5, report.Skipped)
	assert.Equal(t, 2, progressed)

	n, err := s.Count(root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeedRelaysMatchingDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/b.txt", "c/d.txt")

	r := &fakeRelayer{}
	s := newTestSeeder(t, config.WatchRule{
		LocalPath:  root,
		RemotePath: "/srv",
		Match:      []string{`/a$`, `.*\.txt$`},
	}, r)

	report, err := s.Seed(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"/srv/a", "/srv/a/b.txt", "/srv/c/d.txt"}, r.targets())
	assert.Equal(t, Report{Relayed: 3, Skipped: 2}, report)
}

func TestSeedSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/b.txt", "d.txt")

	r := &fakeRelayer{fail: map[string]bool{"/a/b.txt": true}}
	s := newTestSeeder(t, config.WatchRule{LocalPath: root, RemotePath: "/srv", Match: []string{`.*`}}, r)

	report, err := s.Seed(context.Background(), filepath.Join(root, "a"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/srv/a", "/srv/a/b.txt"}, r.targets())
	assert.Equal(t, Report{Relayed: 1, Failed: 1}, report)
}

func TestSeedRejectsForeignDir(t *testing.T) {
	s := newTestSeeder(t, config.WatchRule{LocalPath: t.TempDir(), RemotePath: "/srv"}, &fakeRelayer{})

	_, err := s.Seed(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestSeedStopsWhenCanceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeRelayer{}
	_, err := newTestSeeder(t, config.WatchRule{LocalPath: root, RemotePath: "/srv", Match: []string{`.*`}}, r).Seed(ctx, root)

	assert.True(t, IsCanceled(err))
	assert.Empty(t, r.actions)
}
