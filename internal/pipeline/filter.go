package pipeline

import (
	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/model"
)

// Filter forwards the events keep accepts. The output channel closes when
// inCh does.
func Filter(inCh <-chan model.FileEvent, keep func(model.FileEvent) bool) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if !keep(event) {
				logger.Log.Debug("event filtered",
					zap.String("path", event.Path),
					zap.String("action", string(event.Kind)))
				continue
			}
			outCh <- event
		}
	}()

	return outCh
}
