package receiver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/model"
)

// DefaultMode applies to a modified entry when the request carries no mode.
const DefaultMode os.FileMode = 0644

// Request is one relay or browser upload with its paths already resolved
// against the receiver root. An empty Action marks a browser upload; empty Src
// or Dest means the parameter was absent.
type Request struct {
	Action        string
	IsDir         bool
	FileName      string
	Mode          os.FileMode
	HasMode       bool
	Dir           string
	Src           string
	Dest          string
	ContentType   string
	ContentLength int64
	Body          io.Reader
}

// Applier mutates the mirrored tree according to relayed actions.
type Applier struct {
	fs      afero.Fs
	locks   *PathLocks
	decoder *Decoder
}

func NewApplier(fs afero.Fs, reserved []string) *Applier {
	locks := NewPathLocks()

	return &Applier{
		fs:      fs,
		locks:   locks,
		decoder: NewDecoder(fs, locks, reserved),
	}
}

// Apply never fails the caller: errors and panics surface as failure outcomes.
func (a *Applier) Apply(req Request) (outcome model.SyncOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = failure(fmt.Errorf("%v", r))
		}
	}()

	if req.Action == "" {
		_, out, err := a.decoder.Decode(req.upload())
		if err != nil {
			return failure(err)
		}
		return out
	}

	kind, err := model.ParseEventKind(req.Action)
	if err != nil {
		logger.Log.Info(model.MsgActionUndefined, zap.String("action", req.Action))
		return model.Terminal(model.CodeUnsupportedAction, model.MsgActionUndefined)
	}

	switch kind {
	case model.EventCreated:
		outcome, err = a.created(req)
	case model.EventModified:
		outcome, err = a.modified(req)
	case model.EventDeleted:
		outcome, err = a.deleted(req)
	case model.EventMoved:
		outcome, err = a.moved(req)
	}

	if err != nil {
		return failure(err)
	}

	return outcome
}

func (a *Applier) created(req Request) (model.SyncOutcome, error) {
	if req.IsDir {
		return model.OK(), nil
	}

	_, outcome, err := a.decoder.Decode(req.upload())
	return outcome, err
}

func (a *Applier) modified(req Request) (model.SyncOutcome, error) {
	mode := DefaultMode
	if req.HasMode {
		mode = req.Mode.Perm()
	}

	if req.IsDir {
		unlock := a.locks.Lock(req.Dir)
		defer unlock()

		if err := a.fs.MkdirAll(req.Dir, 0755); err != nil {
			return model.SyncOutcome{}, fmt.Errorf("failed to create dir: %w", err)
		}
		if err := a.fs.Chmod(req.Dir, mode); err != nil {
			return model.SyncOutcome{}, fmt.Errorf("failed to chmod dir: %w", err)
		}
		return model.OK(), nil
	}

	if req.FileName == "" {
		return model.Terminal(model.CodeBadRequest, model.MsgParamError), nil
	}

	up := req.upload()
	up.Mode, up.HasMode = mode, true

	_, outcome, err := a.decoder.Decode(up)
	return outcome, err
}

func (a *Applier) deleted(req Request) (model.SyncOutcome, error) {
	if req.IsDir {
		unlock := a.locks.Lock(req.Dir)
		defer unlock()

		if err := a.fs.RemoveAll(req.Dir); err != nil {
			return model.SyncOutcome{}, fmt.Errorf("failed to remove dir: %w", err)
		}
		return model.OK(), nil
	}

	if req.FileName == "" {
		return model.Terminal(model.CodeBadRequest, model.MsgParamError), nil
	}

	target, ok := a.decoder.destination(req.Dir, req.FileName)
	if !ok {
		return model.NoPermission(), nil
	}

	unlock := a.locks.Lock(target)
	defer unlock()

	if err := a.fs.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return model.SyncOutcome{}, fmt.Errorf("failed to remove file: %w", err)
	}

	return model.OK(), nil
}

func (a *Applier) moved(req Request) (model.SyncOutcome, error) {
	if req.Src == "" || req.Dest == "" {
		logger.Log.Info("move requires src and dest",
			zap.String("src", req.Src),
			zap.String("dest", req.Dest))
		return model.Terminal(model.CodeBadRequest, model.MsgParamError), nil
	}

	// An existing directory at dest receives src inside it.
	dest := req.Dest
	if isDir, _ := afero.IsDir(a.fs, dest); isDir {
		dest = filepath.Join(dest, filepath.Base(req.Src))
	}

	unlock := a.locks.Lock(req.Src, req.Dest, dest)
	defer unlock()

	if _, err := a.fs.Stat(req.Src); errors.Is(err, os.ErrNotExist) {
		return model.OK(), nil
	}

	if dest != req.Dest {
		if _, err := a.fs.Stat(dest); err == nil {
			logger.Log.Info("move destination already exists",
				zap.String("src", req.Src),
				zap.String("dest", dest))
			return model.Terminal(model.CodeBadRequest, model.MsgDestExists), nil
		}
	}

	if err := a.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		logger.Log.Error("failed to create dest parent",
			zap.String("dest", req.Dest),
			zap.Error(err))
		return model.NoPermission(), nil
	}

	if err := a.fs.Rename(req.Src, dest); err != nil {
		return model.SyncOutcome{}, fmt.Errorf("failed to move: %w", err)
	}

	return model.OK(), nil
}

func (r Request) upload() Upload {
	return Upload{
		ContentType:   r.ContentType,
		ContentLength: r.ContentLength,
		Body:          r.Body,
		Dir:           r.Dir,
		FileName:      r.FileName,
	}
}

func failure(err error) model.SyncOutcome {
	msg := fmt.Sprintf("error occurs:%s check the server please", err)
	logger.Log.Error(msg)
	return model.Fail(msg)
}
