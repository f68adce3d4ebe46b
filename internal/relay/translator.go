package relay

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"relaysync/internal/config"
	"relaysync/internal/model"
)

// Translator turns events under one watch root into remote actions.
type Translator struct {
	root   string
	remote string
	stat   func(string) (os.FileInfo, error)
}

func NewTranslator(rule config.WatchRule) (*Translator, error) {
	root, err := filepath.Abs(rule.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("invalid local path: %w", err)
	}

	remote := path.Clean("/" + filepath.ToSlash(rule.RemotePath))

	return &Translator{
		root:   filepath.Clean(root),
		remote: remote,
		stat:   os.Stat,
	}, nil
}

func (t *Translator) Root() string {
	return t.root
}

// Rel returns p relative to the watch root as a slash path with a leading
// slash; the root itself is "".
func (t *Translator) Rel(p string) (string, error) {
	p = filepath.Clean(p)
	if p == t.root {
		return "", nil
	}

	rel, err := filepath.Rel(t.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside watch root %s", p, t.root)
	}

	return "/" + filepath.ToSlash(rel), nil
}

// RemotePath substitutes the remote root for the watch root in p.
func (t *Translator) RemotePath(p string) (string, error) {
	rel, err := t.Rel(p)
	if err != nil {
		return "", err
	}

	return path.Join(t.remote, rel), nil
}

// Translate builds the remote action for ev. The mode of a modified entry is
// sampled here, before the relay reads its content.
func (t *Translator) Translate(ev model.FileEvent) (model.RemoteAction, error) {
	rel, err := t.Rel(ev.Path)
	if err != nil {
		return model.RemoteAction{}, err
	}

	action := model.RemoteAction{
		Kind:      ev.Kind,
		IsDir:     ev.IsDir,
		RelPath:   rel,
		LocalPath: ev.Path,
	}

	if ev.IsDir {
		action.Dir = path.Join(t.remote, rel)
	} else {
		dir, name := path.Split(rel)
		if name == "" {
			return model.RemoteAction{}, fmt.Errorf("file event without a file name: %s", ev.Path)
		}
		action.Dir = path.Join(t.remote, dir)
		action.FileName = name
	}

	switch ev.Kind {
	case model.EventModified:
		info, err := t.stat(ev.Path)
		if err != nil {
			return model.RemoteAction{}, fmt.Errorf("failed to stat %s: %w", ev.Path, err)
		}
		action.Mode = info.Mode().Perm()
		action.HasMode = true

	case model.EventMoved:
		if action.Src, err = t.RemotePath(ev.Path); err != nil {
			return model.RemoteAction{}, err
		}
		if action.Dest, err = t.RemotePath(ev.DestPath); err != nil {
			return model.RemoteAction{}, err
		}

	case model.EventCreated, model.EventDeleted:

	default:
		return model.RemoteAction{}, fmt.Errorf("%w: %q", model.ErrUnsupportedAction, ev.Kind)
	}

	return action, nil
}
