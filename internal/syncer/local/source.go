package local

import (
	"relaysync/internal/model"
)

// Source is the syncer.EventSource for a local watch root.
type Source struct {
	root string
	w    *Watcher
}

func NewSource(path string, bufSize int) (*Source, error) {
	w, err := New(bufSize)
	if err != nil {
		return nil, err
	}

	return &Source{root: path, w: w}, nil
}

func (s *Source) Events() <-chan model.FileEvent {
	return s.w.Events()
}

func (s *Source) Start() error {
	return s.w.Watch(s.root)
}

func (s *Source) Stop() {
	s.w.Stop()
}
