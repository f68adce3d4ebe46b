package pipeline

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/model"
)

type fingerprint struct {
	sum  []byte
	mode os.FileMode
}

// ChecksumFilter drops created and modified events for files whose content
// and mode match what was last let through. The cache is bounded; an evicted
// path simply relays again.
type ChecksumFilter struct {
	cache *lru.Cache
}

func NewChecksumFilter(size int) (*ChecksumFilter, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create checksum cache: %w", err)
	}

	return &ChecksumFilter{cache: cache}, nil
}

func (cf *ChecksumFilter) Run(inCh <-chan model.FileEvent) <-chan model.FileEvent {
	return Filter(inCh, cf.Changed)
}

// Changed reports whether event must be relayed and records the new state.
func (cf *ChecksumFilter) Changed(event model.FileEvent) bool {
	switch event.Kind {
	case model.EventDeleted:
		cf.Forget(event.Path)
		return true
	case model.EventMoved:
		if prev, ok := cf.cache.Get(event.Path); ok {
			cf.cache.Add(event.DestPath, prev)
		}
		cf.Forget(event.Path)
		return true
	}

	if event.IsDir {
		return true
	}

	fp, err := fingerprintOf(event.Path)
	if err != nil {
		// Let the relay surface the error.
		logger.Log.Debug("checksum failed, passing through",
			zap.String("path", event.Path),
			zap.Error(err))
		cf.Forget(event.Path)
		return true
	}

	if prev, ok := cf.cache.Get(event.Path); ok {
		p := prev.(fingerprint)
		if p.mode == fp.mode && bytes.Equal(p.sum, fp.sum) {
			logger.Log.Debug("checksum unchanged, skipping",
				zap.String("path", event.Path))
			return false
		}
	}

	cf.cache.Add(event.Path, fp)
	return true
}

// Forget drops the recorded state of path, e.g. after its relay failed.
func (cf *ChecksumFilter) Forget(path string) {
	cf.cache.Remove(path)
}

func fingerprintOf(path string) (fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return fingerprint{}, err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	info, err := f.Stat()
	if err != nil {
		return fingerprint{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fingerprint{}, err
	}

	return fingerprint{sum: h.Sum(nil), mode: info.Mode().Perm()}, nil
}
