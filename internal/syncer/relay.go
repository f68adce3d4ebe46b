package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/matcher"
	"relaysync/internal/model"
	"relaysync/internal/relay"
)

// RelaySyncer relays the events of one watch root to the receiver, one at a
// time and in order.
type RelaySyncer struct {
	translator *relay.Translator
	matcher    *matcher.Matcher
	relayer    relay.Relayer
}

func NewRelaySyncer(t *relay.Translator, m *matcher.Matcher, r relay.Relayer) *RelaySyncer {
	return &RelaySyncer{
		translator: t,
		matcher:    m,
		relayer:    r,
	}
}

func (s *RelaySyncer) Run(ctx context.Context, inCh <-chan model.FileEvent) <-chan model.SyncResult {
	return RunLoop(inCh, func(event model.FileEvent) model.SyncResult {
		return s.Handle(ctx, event)
	})
}

func (s *RelaySyncer) Handle(ctx context.Context, event model.FileEvent) model.SyncResult {
	scoped, ok := s.scope(event)
	if !ok {
		logger.Log.Debug("out of scope",
			zap.String("path", event.Path),
			zap.String("action", string(event.Kind)))

		return model.SyncResult{
			Root:     s.translator.Root(),
			Event:    event,
			Skipped:  true,
			SyncedAt: time.Now(),
		}
	}

	action, err := s.translator.Translate(scoped)
	if err != nil {
		logger.Log.Warn("failed to translate event",
			zap.String("path", scoped.Path),
			zap.String("action", string(scoped.Kind)),
			zap.Error(err))

		return model.SyncResult{
			Root:     s.translator.Root(),
			Event:    scoped,
			Err:      err,
			SyncedAt: time.Now(),
		}
	}

	result := s.relayer.Relay(ctx, action)
	result.Root = s.translator.Root()
	result.Event = scoped
	return result
}

// scope applies the matcher. A move that crosses the boundary of the synced
// set becomes a creation of its destination or a deletion of its source.
func (s *RelaySyncer) scope(event model.FileEvent) (model.FileEvent, bool) {
	srcSkip := s.skip(event.Path)
	if event.Kind != model.EventMoved {
		return event, !srcSkip
	}

	destSkip := s.skip(event.DestPath)
	switch {
	case srcSkip && destSkip:
		return event, false
	case srcSkip:
		return model.FileEvent{Kind: model.EventCreated, Path: event.DestPath, IsDir: event.IsDir, Timestamp: event.Timestamp}, true
	case destSkip:
		return model.FileEvent{Kind: model.EventDeleted, Path: event.Path, IsDir: event.IsDir, Timestamp: event.Timestamp}, true
	default:
		return event, true
	}
}

func (s *RelaySyncer) skip(p string) bool {
	rel, err := s.translator.Rel(p)
	if err != nil {
		return true
	}

	return s.matcher.ShouldSkip(rel)
}
