package local

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/model"
)

// DefaultMoveWindow is how long a rename waits for the create that completes
// it before it is reported as a deletion.
const DefaultMoveWindow = 50 * time.Millisecond

// Watcher turns fsnotify notifications under one root into FileEvents. Sends
// block, so a slow consumer throttles the watcher instead of losing events.
type Watcher struct {
	fw         *fsnotify.Watcher
	eventCh    chan model.FileEvent
	doneCh     chan struct{}
	moveWindow time.Duration

	// dirs holds every watched directory. Removed paths cannot be stat'ed, so
	// this is the only way to tell a deleted directory from a deleted file.
	dirs map[string]struct{}

	pending      *model.FileEvent
	pendingTimer *time.Timer
}

func New(bufferSize int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:         fw,
		eventCh:    make(chan model.FileEvent, bufferSize),
		doneCh:     make(chan struct{}),
		moveWindow: DefaultMoveWindow,
		dirs:       make(map[string]struct{}),
	}, nil
}

func (w *Watcher) Watch(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("source directory not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", absDir)
	}

	if err := w.addRecursive(absDir, nil); err != nil {
		return err
	}

	go w.run()

	logger.Log.Info("watcher started",
		zap.String("dir", absDir))
	return nil
}

// addRecursive watches dir and everything below it. When found is set, it is
// called for every entry below dir, so that entries created before the watch
// was in place are still reported.
func (w *Watcher) addRecursive(dir string, found func(path string, isDir bool)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if found != nil && path != dir {
			found(path, d.IsDir())
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			w.dirs[path] = struct{}{}

			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

func (w *Watcher) forget(dir string) {
	prefix := dir + string(filepath.Separator)
	for p := range w.dirs {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(w.dirs, p)
			_ = w.fw.Remove(p)
		}
	}
}

func (w *Watcher) run() {
	defer close(w.eventCh)

	for {
		var expired <-chan time.Time
		if w.pendingTimer != nil {
			expired = w.pendingTimer.C
		}

		select {
		case <-w.doneCh:
			logger.Log.Info("watcher stopping")
			return

		case <-expired:
			if !w.flushPending() {
				return
			}

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			if !w.handle(fsEvent) {
				return
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			logger.Log.Error("watcher error",
				zap.Error(err))
		}
	}
}

// handle reports false once the watcher is stopping.
func (w *Watcher) handle(fsEvent fsnotify.Event) bool {
	path := filepath.Clean(fsEvent.Name)

	switch {
	case fsEvent.Op.Has(fsnotify.Create):
		return w.created(path)

	case fsEvent.Op.Has(fsnotify.Rename):
		if !w.flushPending() {
			return false
		}

		_, isDir := w.dirs[path]
		w.pending = &model.FileEvent{Kind: model.EventMoved, Path: path, IsDir: isDir, Timestamp: time.Now()}
		w.pendingTimer = time.NewTimer(w.moveWindow)
		return true

	case fsEvent.Op.Has(fsnotify.Remove):
		if !w.flushPending() {
			return false
		}

		_, isDir := w.dirs[path]
		if isDir {
			w.forget(path)
		}
		return w.emit(model.FileEvent{Kind: model.EventDeleted, Path: path, IsDir: isDir})

	case fsEvent.Op.Has(fsnotify.Write), fsEvent.Op.Has(fsnotify.Chmod):
		if !w.flushPending() {
			return false
		}

		_, isDir := w.dirs[path]
		return w.emit(model.FileEvent{Kind: model.EventModified, Path: path, IsDir: isDir})
	}

	return true
}

func (w *Watcher) created(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		// Gone again before we looked; the matching remove follows.
		logger.Log.Debug("created entry vanished",
			zap.String("path", path))
		return w.flushPending()
	}
	isDir := info.IsDir()

	var ev model.FileEvent
	if moved := w.takePending(); moved != nil && moved.IsDir == isDir {
		ev = *moved
		ev.DestPath = path
		if isDir {
			w.forget(moved.Path)
		}
	} else {
		if moved != nil && !w.emitDeletion(*moved) {
			return false
		}
		ev = model.FileEvent{Kind: model.EventCreated, Path: path, IsDir: isDir}
	}

	if !w.emit(ev) {
		return false
	}

	if !isDir {
		return true
	}

	// A directory created or moved in brings its contents along. Report them
	// unless the directory itself was moved, in which case the receiver already
	// has them.
	var found []model.FileEvent
	report := func(p string, dir bool) {
		found = append(found, model.FileEvent{Kind: model.EventCreated, Path: p, IsDir: dir})
	}
	if ev.Kind == model.EventMoved {
		report = nil
	}

	if err := w.addRecursive(path, report); err != nil {
		logger.Log.Warn("failed to watch new directory",
			zap.String("path", path),
			zap.Error(err))
	}

	for _, child := range found {
		if !w.emit(child) {
			return false
		}
	}

	return true
}

func (w *Watcher) takePending() *model.FileEvent {
	if w.pending == nil {
		return nil
	}

	w.pendingTimer.Stop()
	ev := w.pending
	w.pending = nil
	w.pendingTimer = nil
	return ev
}

// flushPending reports an unpaired rename as the deletion of its source.
func (w *Watcher) flushPending() bool {
	ev := w.takePending()
	if ev == nil {
		return true
	}

	return w.emitDeletion(*ev)
}

func (w *Watcher) emitDeletion(ev model.FileEvent) bool {
	if ev.IsDir {
		w.forget(ev.Path)
	}

	return w.emit(model.FileEvent{Kind: model.EventDeleted, Path: ev.Path, IsDir: ev.IsDir, Timestamp: ev.Timestamp})
}

func (w *Watcher) emit(ev model.FileEvent) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	select {
	case w.eventCh <- ev:
		return true
	case <-w.doneCh:
		return false
	}
}

func (w *Watcher) Events() <-chan model.FileEvent {
	return w.eventCh
}

func (w *Watcher) Stop() {
	close(w.doneCh)
	_ = w.fw.Close()
}
