package model

import (
	"errors"
	"fmt"
	"time"
)

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
	EventMoved    EventKind = "moved"
)

var ErrUnsupportedAction = errors.New("unsupported action")

func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventCreated, EventModified, EventDeleted, EventMoved:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAction, s)
	}
}

// FileEvent is one change observed under a watch root. DestPath is set for
// EventMoved only.
type FileEvent struct {
	Kind      EventKind
	Path      string
	DestPath  string
	IsDir     bool
	Timestamp time.Time
}
