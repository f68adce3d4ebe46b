package model

import (
	"net/url"
	"os"
	"path"
	"strconv"
)

// RemoteAction is the wire form of one FileEvent, addressed to the receiver.
type RemoteAction struct {
	Kind     EventKind
	Dir      string
	IsDir    bool
	FileName string
	Mode     os.FileMode
	HasMode  bool
	Src      string
	Dest     string

	// RelPath is the event path relative to the watch root, with a leading
	// slash. LocalPath is the file whose content is attached.
	RelPath   string
	LocalPath string
}

// Target is the remote path the action addresses.
func (a RemoteAction) Target() string {
	if a.IsDir || a.FileName == "" {
		return a.Dir
	}

	return path.Join(a.Dir, a.FileName)
}

// HasBody reports whether the relay request carries file content.
func (a RemoteAction) HasBody() bool {
	return !a.IsDir && (a.Kind == EventCreated || a.Kind == EventModified)
}

func (a RemoteAction) Query() url.Values {
	q := url.Values{}
	q.Set("action", string(a.Kind))
	q.Set("is_dir", boolParam(a.IsDir))
	q.Set("file_name", a.FileName)

	if a.Kind == EventModified && a.HasMode {
		q.Set("mode", strconv.FormatUint(uint64(a.Mode.Perm()), 10))
	}

	if a.Kind == EventMoved {
		q.Set("src", a.Src)
		q.Set("dest", a.Dest)
	}

	return q
}

// URL resolves the action against the receiver base URL.
func (a RemoteAction) URL(base *url.URL) *url.URL {
	u := *base
	u.Path = path.Join("/", base.Path, a.Dir)
	u.RawPath = ""
	u.RawQuery = a.Query().Encode()
	return &u
}

func boolParam(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
