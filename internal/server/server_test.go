package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaysync/internal/config"
	"relaysync/internal/model"
	"relaysync/internal/relay"
)

const (
	testUser = "sync"
	testPass = "secret"
)

func newTestServer(t *testing.T, fs afero.Fs, root string) *httptest.Server {
	t.Helper()

	s, err := New(config.ServerConfig{
		Root:          root,
		Username:      testUser,
		Password:      testPass,
		ReservedNames: []string{"relaysync"},
	}, fs)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, rawURL string) model.SyncOutcome {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, rawURL, nil)
	require.NoError(t, err)
	req.SetBasicAuth(testUser, testPass)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var outcome model.SyncOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
	return outcome
}

func get(t *testing.T, rawURL string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	req.SetBasicAuth(testUser, testPass)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRequiresCredentials(t *testing.T) {
	srv := newTestServer(t, afero.NewMemMapFs(), "/")

	resp, err := http.Post(srv.URL+"/srv?action=created&is_dir=1", "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), realm)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.SetBasicAuth(testUser, "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMirrorRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	srv := newTestServer(t, fs, "/")

	local := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(local, "a"), 0755))
	file := filepath.Join(local, "a", "b.txt")
	require.NoError(t, os.WriteFile(file, []byte("hi"), 0644))
	require.NoError(t, os.Chmod(file, 0644))

	tr, err := relay.NewTranslator(config.WatchRule{LocalPath: local, RemotePath: "/srv/proj"})
	require.NoError(t, err)

	client, err := relay.NewClient(config.ClientConfig{
		RemoteHost: srv.URL,
		Username:   testUser,
		Password:   testPass,
		RetryTimes: 2,
		Timeout:    time.Second,
	}, nil)
	require.NoError(t, err)

	send := func(ev model.FileEvent) model.SyncResult {
		t.Helper()

		action, err := tr.Translate(ev)
		require.NoError(t, err)
		result := client.Relay(context.Background(), action)
		require.NoError(t, result.Err)
		require.Equal(t, 1, result.Attempts)
		return result
	}

	send(model.FileEvent{Kind: model.EventCreated, Path: filepath.Join(local, "a"), IsDir: true})
	send(model.FileEvent{Kind: model.EventModified, Path: file})

	status, body := get(t, srv.URL+"/srv/proj/a/b.txt")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hi", body)

	info, err := fs.Stat("/srv/proj/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	status, body = get(t, srv.URL+"/srv/proj/a/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "b.txt")

	moved := filepath.Join(local, "a", "c.txt")
	require.NoError(t, os.Rename(file, moved))
	send(model.FileEvent{Kind: model.EventMoved, Path: file, DestPath: moved})

	status, body = get(t, srv.URL+"/srv/proj/a/c.txt")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hi", body)

	require.NoError(t, os.Remove(moved))
	for range 2 {
		send(model.FileEvent{Kind: model.EventDeleted, Path: moved})
	}

	status, _ = get(t, srv.URL+"/srv/proj/a/c.txt")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRootConfinesPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	srv := newTestServer(t, fs, "/srv")

	outcome := post(t, srv.URL+"/proj/x?action=modified&is_dir=1&mode=493")
	require.True(t, outcome.OK())

	info, err := fs.Stat("/srv/proj/x")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	outcome = post(t, srv.URL+"/proj?action=moved&src=/proj/x&dest=/../../outside")
	require.True(t, outcome.OK())

	exists, err := afero.DirExists(fs, "/srv/outside")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = afero.DirExists(fs, "/outside")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRejectedRequests(t *testing.T) {
	srv := newTestServer(t, afero.NewMemMapFs(), "/")

	tests := []struct {
		name  string
		query string
		exp   model.SyncOutcome
	}{
		{
			name:  "unknown action",
			query: "?action=renamed",
			exp:   model.Terminal(model.CodeUnsupportedAction, model.MsgActionUndefined),
		},
		{
			name:  "bad mode",
			query: "?action=modified&is_dir=1&mode=rwx",
			exp:   model.Terminal(model.CodeBadRequest, model.MsgParamError),
		},
		{
			name:  "move without dest",
			query: "?action=moved&src=/srv/a",
			exp:   model.Terminal(model.CodeBadRequest, model.MsgParamError),
		},
		{
			name:  "created file without body",
			query: "?action=created&is_dir=0&file_name=a.txt",
			exp:   model.Fail(model.MsgNoBoundary),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, post(t, srv.URL+"/srv"+test.query))
		})
	}
}

func TestRequestIDPropagates(t *testing.T) {
	srv := newTestServer(t, afero.NewMemMapFs(), "/")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/srv?action=created&is_dir=1", nil)
	require.NoError(t, err)
	req.SetBasicAuth(testUser, testPass)
	req.Header.Set("X-Request-Id", "req-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "req-1", resp.Header.Get("X-Request-Id"))
}
