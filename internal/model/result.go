package model

import "time"

// SyncResult is the watcher-side record of one relayed action.
type SyncResult struct {
	Root      string
	Event     FileEvent
	Action    RemoteAction
	RequestID string
	Attempts  int
	Outcome   SyncOutcome
	Skipped   bool
	Err       error
	SyncedAt  time.Time
}
